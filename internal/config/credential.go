package config

import (
	"errors"
	"fmt"

	"github.com/kubilitics/aicli/internal/ai"
	"github.com/kubilitics/aicli/internal/keychain"
)

var ErrMissingCredential = errors.New("missing language model credential")

// CredentialSource says where the API key came from.
type CredentialSource string

const (
	SourceNone     CredentialSource = "none"
	SourceConfig   CredentialSource = "config"
	SourceEnv      CredentialSource = "env"
	SourceKeychain CredentialSource = "keychain"
)

// ResolveAPIKey looks for the provider's key in ai.api_key (file or
// AICLI_AI_API_KEY), then the vendor variable (OPENAI_API_KEY,
// ANTHROPIC_API_KEY, AZURE_OPENAI_API_KEY), then kc. It returns
// ErrMissingCredential only when the provider needs a key and none was found.
// Keychain read failures are reported alongside ErrMissingCredential.
func (c *Config) ResolveAPIKey(kc keychain.Store) (string, CredentialSource, error) {
	if c.AI.APIKey != "" {
		return c.AI.APIKey, SourceConfig, nil
	}
	if key := c.providerKeys[c.AI.Provider]; key != "" {
		return key, SourceEnv, nil
	}
	var kcErr error
	if kc != nil {
		key, err := kc.Get(keychain.Account(c.AI.Provider))
		switch {
		case err != nil:
			kcErr = err
		case key != "":
			return key, SourceKeychain, nil
		}
	}
	if !ai.RequiresAPIKey(c.AI.Provider) {
		return "", SourceNone, nil
	}
	hint := "set ai.api_key, AICLI_AI_API_KEY"
	if env, ok := vendorKeyEnv[c.AI.Provider]; ok {
		hint += " or " + env
	}
	hint += ", or run 'aicli config set-api-key'"
	if kcErr != nil {
		return "", SourceNone, fmt.Errorf("%w for provider %s (%s): keychain: %w", ErrMissingCredential, c.AI.Provider, hint, kcErr)
	}
	return "", SourceNone, fmt.Errorf("%w for provider %s (%s)", ErrMissingCredential, c.AI.Provider, hint)
}
