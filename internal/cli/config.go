package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kubilitics/aicli/internal/ai"
	"github.com/kubilitics/aicli/internal/keychain"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Inspect configuration and manage the model credential",
		Annotations: map[string]string{annotationSkipSetup: "true"},
	}
	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigSetAPIKeyCmd(a),
		newConfigDeleteAPIKeyCmd(a),
	)
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			file := a.cfg.File
			if file == "" {
				file = "(none, using defaults)"
			}
			_, source, _ := a.cfg.ResolveAPIKey(a.opts.Keychain)
			fmt.Fprintf(out, "# config file: %s\n# api key source: %s\n", file, source)
			b, err := yaml.Marshal(a.cfg.Redacted())
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = out.Write(b)
			return err
		},
	}
}

func newConfigSetAPIKeyCmd(a *app) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "set-api-key",
		Short: "Store the model API key in the OS keychain",
		Long:  "Store the model API key in the OS keychain. The key is read from the terminal without echo, or from stdin when piped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider = strings.ToLower(strings.TrimSpace(provider))
			if provider == "" {
				provider = a.cfg.AI.Provider
			}
			if !ai.Supported(provider) {
				return fmt.Errorf("unsupported provider %q (supported: %s)", provider, strings.Join(ai.Providers(), ", "))
			}
			key, err := readSecret(a.stdin, cmd.ErrOrStderr(), fmt.Sprintf("API key for %s: ", provider))
			if err != nil {
				return err
			}
			if key == "" {
				return errors.New("no API key entered")
			}
			account := keychain.Account(provider)
			if err := a.opts.Keychain.Set(account, key); err != nil {
				return fmt.Errorf("store API key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored API key for %s in the OS keychain (account %s).\n", provider, account)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider the key belongs to (default: ai.provider)")
	return cmd
}

func newConfigDeleteAPIKeyCmd(a *app) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "delete-api-key",
		Short: "Remove the model API key from the OS keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider = strings.ToLower(strings.TrimSpace(provider))
			if provider == "" {
				provider = a.cfg.AI.Provider
			}
			account := keychain.Account(provider)
			if err := a.opts.Keychain.Delete(account); err != nil {
				return fmt.Errorf("delete API key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed API key for %s from the OS keychain.\n", provider)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider the key belongs to (default: ai.provider)")
	return cmd
}
