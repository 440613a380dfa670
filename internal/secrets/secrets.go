// Package secrets provides the pluggable credential backend behind channel
// adapter configuration (SMTP password, SMS/push provider API keys). It
// generalizes the teacher's HashiCorp Vault adapter into a narrow
// Provider interface with two implementations: an env-var provider used by
// default, and a Vault KV v2 provider used when VAULT_ADDR is configured.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"notifyhub/internal/apperr"
)

// Provider resolves a named secret to its current value. Keys are
// provider-specific identifiers ("SMTP_PASSWORD", "SMS_PROVIDER_API_KEY",
// "PUSH_PROVIDER_API_KEY").
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvProvider resolves secrets from process environment variables,
// optionally prefixed (e.g. "NOTIFYHUB_"). This is the default backend for
// local development and single-box deployments.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider builds an EnvProvider with the given environment variable
// prefix (may be empty).
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Get returns the environment variable prefix+key, or a not-found error if
// unset or empty.
func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	v := os.Getenv(p.prefix + key)
	if v == "" {
		return "", apperr.New(apperr.KindNotFound, fmt.Sprintf("secret %q not set", key))
	}
	return v, nil
}

// VaultProvider resolves secrets from a HashiCorp Vault KV v2 mount,
// adapted from the teacher's HashiCorpVaultAdapter: same client/path
// shape, narrowed to read-only Get since notifyhub never writes secrets
// back to Vault.
type VaultProvider struct {
	client *vaultapi.Client
	mount  string
	path   string
}

// NewVaultProvider builds a VaultProvider against a KV v2 secret at
// mount/path (e.g. mount="secret", path="notifyhub/channels").
func NewVaultProvider(address, token, mount, path string) (*VaultProvider, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: failed to create vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultProvider{client: client, mount: strings.Trim(mount, "/"), path: strings.Trim(path, "/")}, nil
}

// Get reads key out of the KV v2 secret's data map.
func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	secretPath := fmt.Sprintf("%s/data/%s", p.mount, p.path)
	secret, err := p.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("secrets: vault read %s: %w", secretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return "", apperr.New(apperr.KindNotFound, fmt.Sprintf("vault secret not found at %s", secretPath))
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", apperr.New(apperr.KindInternal, fmt.Sprintf("vault secret at %s has no data field", secretPath))
	}

	value, ok := data[key].(string)
	if !ok {
		return "", apperr.New(apperr.KindNotFound, fmt.Sprintf("key %q not present in vault secret %s", key, secretPath))
	}
	return value, nil
}

// NewFromEnv builds the appropriate Provider for the process environment:
// VaultProvider when VAULT_ADDR and VAULT_TOKEN are both set, EnvProvider
// otherwise.
func NewFromEnv() (Provider, error) {
	addr := os.Getenv("VAULT_ADDR")
	token := os.Getenv("VAULT_TOKEN")
	if addr == "" || token == "" {
		return NewEnvProvider("NOTIFYHUB_"), nil
	}

	mount := os.Getenv("VAULT_KV_MOUNT")
	if mount == "" {
		mount = "secret"
	}
	path := os.Getenv("VAULT_SECRET_PATH")
	if path == "" {
		path = "notifyhub/channels"
	}
	return NewVaultProvider(addr, token, mount, path)
}
