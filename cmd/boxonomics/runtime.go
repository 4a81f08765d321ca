package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/preflight"
	"boxonomics/pkg/telemetry"
)

// EnvPassword supplies the secrets file password without a prompt.
const EnvPassword = "BOXONOMICS_PASSWORD"

// runtimeEnv is the loaded configuration plus everything that must be released on exit.
type runtimeEnv struct {
	cfg     *config.Config
	closers []func() error
}

func (r *runtimeEnv) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cleanup failed: %v\n", err)
		}
	}
	r.closers = nil
}

// loadRuntime loads config, applies logging settings, decrypts the secrets file when present
// and starts tracing.
func loadRuntime(ctx context.Context, opts *globalOptions) (*runtimeEnv, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors already carry context
	}
	env := &runtimeEnv{cfg: cfg}

	logx.SetLevel(cfg.LogLevel)
	if opts.debug {
		logx.SetLevel(string(logx.LevelDebug))
	}
	if cfg.LogFile != "" {
		closeLog, err := logx.SetLogFile(cfg.LogFile)
		if err != nil {
			return nil, err //nolint:wrapcheck // logx adds the path
		}
		env.closers = append(env.closers, closeLog)
	}

	if err := loadSecrets(opts.secretsDir); err != nil {
		env.Close()
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		env.Close()
		return nil, err //nolint:wrapcheck // telemetry adds context
	}
	env.closers = append(env.closers, func() error { return shutdown(context.Background()) })
	return env, nil
}

// loadSecrets decrypts the secrets file if it exists. Without a password it is skipped
// and secrets resolve from the environment only.
func loadSecrets(dir string) error {
	path := config.SecretsPath(dir)
	if !config.SecretsFileExists(path) {
		return nil
	}
	password, err := secretsPassword(false)
	if err != nil {
		return err
	}
	if password == "" {
		logx.Warnf("Secrets file %s found but no password available; using environment only", path)
		return nil
	}
	if err := config.LoadSecretsFile(path, password); err != nil {
		return fmt.Errorf("failed to unlock secrets: %w", err)
	}
	return nil
}

// secretsPassword returns the password from the environment, or prompts when stdin is a terminal.
// confirm asks twice, for creating a new file.
func secretsPassword(confirm bool) (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, "Secrets password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if !confirm {
		return string(first), nil
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

// runPreflight prints check results and fails only when a required check fails.
func runPreflight(ctx context.Context, cfg *config.Config, w io.Writer, verbose bool) error {
	results, err := preflight.Run(ctx, cfg)
	if err != nil {
		return err //nolint:wrapcheck // preflight adds context
	}
	if verbose || !results.Passed {
		fmt.Fprint(w, preflight.FormatResults(results))
	}
	if !results.Passed {
		return errors.New("preflight checks failed")
	}
	return nil
}

// renderer formats answers as markdown when stdout is a terminal.
type renderer struct {
	tr *glamour.TermRenderer
}

func newRenderer(plain bool) *renderer {
	if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return &renderer{}
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return &renderer{}
	}
	return &renderer{tr: tr}
}

func (r *renderer) Render(content string) string {
	if r.tr == nil {
		return content + "\n"
	}
	out, err := r.tr.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}
