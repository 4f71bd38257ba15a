// Package mcpadapter exposes the request pipeline as a single MCP tool,
// "chat_complete", so an MCP-speaking client (an editor, an agent
// harness) can drive the gateway through the exact same entry point the
// HTTP completions handler and the workflow step executor use. It holds
// no policy of its own: argument parsing in, Pipeline.Complete out.
package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/blueberrycongee/aihub/internal/pipeline"
	aerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/types"
)

const (
	serverName    = "aihub"
	toolName      = "chat_complete"
	workflowLabel = "mcp"
)

// NewServer builds an MCP server exposing the gateway's single
// chat_complete tool against p. logger defaults to slog.Default() if nil.
func NewServer(p *pipeline.Pipeline, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	srv := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))
	srv.AddTool(tool(), handler(p, logger))
	return srv
}

// Serve blocks running srv over stdio until the client disconnects or
// ctx is cancelled. It is the third caller of Pipeline.Complete,
// alongside the HTTP handler and the (externally owned) workflow step
// executor, all three reached through the identical signature.
func Serve(ctx context.Context, srv *server.MCPServer) error {
	return server.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout)
}

func tool() mcp.Tool {
	return mcp.Tool{
		Name:        toolName,
		Description: "Send an OpenAI-compatible chat completion through the gateway's routing, budget, and retry pipeline",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"model": map[string]any{
					"type":        "string",
					"description": "Model name or alias (e.g. gpt-4o, claude-3-5-sonnet, local)",
				},
				"messages": map[string]any{
					"type":        "array",
					"description": "OpenAI-compatible message list: [{role, content}]",
				},
				"max_tokens": map[string]any{
					"type":        "integer",
					"description": "Maximum completion tokens",
				},
				"temperature": map[string]any{
					"type":        "number",
					"description": "Sampling temperature",
				},
			},
			Required: []string{"model", "messages"},
		},
	}
}

type mcpMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mcpArgs struct {
	Model       string       `json:"model"`
	Messages    []mcpMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature *float64     `json:"temperature"`
}

func handler(p *pipeline.Pipeline, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("marshal tool arguments", err), nil
		}
		var args mcpArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return mcp.NewToolResultErrorFromErr("parse tool arguments", err), nil
		}
		if args.Model == "" {
			return mcp.NewToolResultError("model is required"), nil
		}
		if len(args.Messages) == 0 {
			return mcp.NewToolResultError("messages is required"), nil
		}

		req := &types.ChatRequest{
			Model:       args.Model,
			MaxTokens:   args.MaxTokens,
			Temperature: args.Temperature,
		}
		for _, m := range args.Messages {
			content, err := json.Marshal(m.Content)
			if err != nil {
				return mcp.NewToolResultErrorFromErr("encode message content", err), nil
			}
			req.Messages = append(req.Messages, types.ChatMessage{Role: m.Role, Content: content})
		}

		resp, outcome, err := p.Complete(ctx, req, workflowLabel)
		if err != nil {
			logger.Warn("mcp chat_complete failed", "model", args.Model, "error", err)
			if ae, ok := err.(*aerrors.Error); ok {
				return mcp.NewToolResultError(fmt.Sprintf("%s: %s", ae.Kind, ae.Message)), nil
			}
			return mcp.NewToolResultErrorFromErr("chat completion failed", err), nil
		}

		out := map[string]any{"response": resp}
		if outcome != nil && outcome.UsedFallback {
			out["fallback"] = map[string]any{
				"original_provider": outcome.OriginalProvider,
				"actual_provider":   outcome.ActualProvider,
			}
		}
		body, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("marshal tool result", err), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}
