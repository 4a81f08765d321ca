package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"boxonomics/pkg/config"
)

// KnownSecrets are the names the providers and model endpoints look up.
//
//nolint:gochecknoglobals // fixed list for help output
var KnownSecrets = []string{
	config.EnvAnthropicAPIKey,
	config.EnvOpenAIAPIKey,
	config.EnvGoogleAPIKey,
	config.EnvOddsAPIKey,
	config.EnvNewsAPIKey,
	config.EnvRedditClientID,
	config.EnvRedditClientSecret,
	config.EnvRedditUserAgent,
}

func newSecretsCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
		Long: fmt.Sprintf(`Manage API keys in an encrypted file (scrypt + AES-GCM) under --secrets-dir.

Secrets in the file take precedence over environment variables. The password is read
from %s or prompted for.

Known names: %s`, EnvPassword, strings.Join(KnownSecrets, ", ")),
	}
	cmd.AddCommand(newSecretsSetCmd(global), newSecretsListCmd(global), newSecretsDeleteCmd(global))
	return cmd
}

func newSecretsSetCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME [VALUE]",
		Short: "Store a secret (prompts for the value when omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !validSecretName(name) {
				return errors.New("secret name must contain only letters, digits and underscores")
			}
			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				v, err := promptSecretValue(name)
				if err != nil {
					return err
				}
				value = v
			}
			if value == "" {
				return errors.New("secret value is required")
			}
			return updateSecrets(global.secretsDir, func(secrets map[string]string) {
				secrets[name] = value
			}, cmd.OutOrStdout(), fmt.Sprintf("🔐 Stored %s", name))
		},
	}
}

func newSecretsListCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.SecretsPath(global.secretsDir)
			out := cmd.OutOrStdout()
			if !config.SecretsFileExists(path) {
				fmt.Fprintf(out, "No secrets file at %s\n", path)
				return nil
			}
			secrets, err := openSecrets(path)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(secrets))
			for name := range secrets {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

func newSecretsDeleteCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return updateSecrets(global.secretsDir, func(secrets map[string]string) {
				delete(secrets, name)
			}, cmd.OutOrStdout(), fmt.Sprintf("🗑️  Deleted %s", name))
		},
	}
}

// openSecrets decrypts an existing secrets file.
func openSecrets(path string) (map[string]string, error) {
	password, err := secretsPassword(false)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("a password is required: set %s or run interactively", EnvPassword)
	}
	secrets, err := config.DecryptSecretsFile(path, password)
	if err != nil {
		return nil, err //nolint:wrapcheck // config adds context
	}
	return secrets, nil
}

func updateSecrets(dir string, mutate func(map[string]string), out io.Writer, done string) error {
	path := config.SecretsPath(dir)
	exists := config.SecretsFileExists(path)

	var password string
	var secrets map[string]string
	var err error
	if exists {
		if password, err = secretsPassword(false); err != nil {
			return err
		}
		if password == "" {
			return fmt.Errorf("a password is required: set %s or run interactively", EnvPassword)
		}
		if secrets, err = config.DecryptSecretsFile(path, password); err != nil {
			return err //nolint:wrapcheck // config adds context
		}
	} else {
		if password, err = secretsPassword(true); err != nil {
			return err
		}
		if password == "" {
			return fmt.Errorf("a password is required: set %s or run interactively", EnvPassword)
		}
		secrets = map[string]string{}
	}

	mutate(secrets)
	if err := config.EncryptSecretsFile(path, password, secrets); err != nil {
		return err //nolint:wrapcheck // config adds context
	}
	fmt.Fprintf(out, "%s (%s)\n", done, path)
	return nil
}

func promptSecretValue(name string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("secret value is required when stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "%s: ", name)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return strings.TrimSpace(string(value)), nil
}

func validSecretName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
