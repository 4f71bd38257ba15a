package vault

import (
	"fmt"
	"log/slog"
	"os"
)

// LoadOrGenerateKey implements the vault's startup key-sourcing
// algorithm: read the key from the named environment variable if set,
// otherwise generate a fresh one, append it to the given env file so a
// restart picks up the same key, and log a one-time warning. The env
// file is created if absent.
func LoadOrGenerateKey(envVar, envFilePath string, logger *slog.Logger) (*Vault, error) {
	if existing := os.Getenv(envVar); existing != "" {
		return NewFromKeySource(existing)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(envFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("vault: open env file %s: %w", envFilePath, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "\n# credential encryption key (auto-generated)\n%s=%s\n", envVar, key); err != nil {
		return nil, fmt.Errorf("vault: persist generated key: %w", err)
	}

	if err := os.Setenv(envVar, key); err != nil {
		return nil, fmt.Errorf("vault: set generated key in environment: %w", err)
	}

	if logger != nil {
		logger.Warn("generated credential encryption key and saved it to env file; keep this secret safe",
			"env_var", envVar, "env_file", envFilePath)
	}

	return NewFromKeySource(key)
}
