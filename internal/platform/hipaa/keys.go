package hipaa

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// Keys holds the decoded key material for sealing and blind indexing.
type Keys struct {
	Encryption []byte
	BlindIndex []byte
}

// KeysFromStrings decodes both keys and rejects reuse of one key for both
// purposes.
func KeysFromStrings(encryption, blindIndex string) (Keys, error) {
	enc, err := DecodeKey(encryption)
	if err != nil {
		return Keys{}, fmt.Errorf("encryption key: %w", err)
	}
	bi, err := DecodeKey(blindIndex)
	if err != nil {
		return Keys{}, fmt.Errorf("blind index key: %w", err)
	}
	if string(enc) == string(bi) {
		return Keys{}, fmt.Errorf("blind index key must differ from the encryption key")
	}
	return Keys{Encryption: enc, BlindIndex: bi}, nil
}

// VaultKeySource reads keys from a Vault KV v2 secret holding the fields
// "encryption_key" and "blind_index_key".
type VaultKeySource struct {
	client *vault.Client
	path   string
}

// NewVaultKeySource builds a client for addr authenticated with token. path
// is the full KV v2 data path, e.g. "secret/data/clinic/keys".
func NewVaultKeySource(addr, token, path string) (*VaultKeySource, error) {
	cfg := vault.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return &VaultKeySource{client: client, path: path}, nil
}

// Load fetches and decodes the keys.
func (v *VaultKeySource) Load(ctx context.Context) (Keys, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return Keys{}, fmt.Errorf("read vault secret %s: %w", v.path, err)
	}
	if secret == nil || secret.Data == nil {
		return Keys{}, fmt.Errorf("vault secret %s not found", v.path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Keys{}, fmt.Errorf("vault secret %s is not a KV v2 secret", v.path)
	}
	enc, _ := data["encryption_key"].(string)
	bi, _ := data["blind_index_key"].(string)
	return KeysFromStrings(enc, bi)
}
