package anthropic

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/provider"
	"github.com/blueberrycongee/aihub/pkg/types"
)

func newTestProvider() *Provider {
	p, _ := New(provider.Config{APIKey: "sk-ant-test", Models: []string{"claude-3-5-sonnet-20241022"}})
	return p.(*Provider)
}

func TestSupportsModel(t *testing.T) {
	p := newTestProvider()
	assert.True(t, p.SupportsModel("claude-3-5-sonnet-20241022"))
	assert.True(t, p.SupportsModel("claude-3-opus"))
	assert.False(t, p.SupportsModel("gpt-4o"))
}

func TestBuildRequestExtractsSystemMessage(t *testing.T) {
	p := newTestProvider()
	req := &types.ChatRequest{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []types.ChatMessage{
			{Role: "system", Content: []byte(`"be terse"`)},
			{Role: "user", Content: []byte(`"hi"`)},
		},
	}

	httpReq, err := p.BuildRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", httpReq.Header.Get("x-api-key"))
	assert.Equal(t, DefaultAPIVersion, httpReq.Header.Get("anthropic-version"))

	body, _ := io.ReadAll(httpReq.Body)
	var decoded anthropicRequest
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "be terse", decoded.System)
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "user", decoded.Messages[0].Role)
	assert.Equal(t, "hi", decoded.Messages[0].Content)
}

func TestBuildRequestRejectsSystemOnlyMessages(t *testing.T) {
	p := newTestProvider()
	req := &types.ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []types.ChatMessage{{Role: "system", Content: []byte(`"be terse"`)}},
	}
	_, err := p.BuildRequest(context.Background(), req)
	assert.Error(t, err)
}

func TestMapErrorClassification(t *testing.T) {
	p := newTestProvider()
	err := p.MapError(http.StatusUnauthorized, []byte(`{"error":{"message":"bad key"}}`), nil)
	assert.True(t, llmerrors.Is(err, llmerrors.KindAuth))

	err = p.MapError(http.StatusTooManyRequests, []byte(`{}`), nil)
	assert.True(t, llmerrors.Is(err, llmerrors.KindUpstreamRateLimited))

	err = p.MapError(http.StatusInternalServerError, []byte(`{}`), nil)
	assert.True(t, llmerrors.Is(err, llmerrors.KindUpstreamTransient))
}
