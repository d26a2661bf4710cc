// Application state and initialization for tella CLI
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sonemaro/tella/internal/ai"
	"github.com/sonemaro/tella/internal/config"
	"github.com/sonemaro/tella/internal/types"
	"github.com/sonemaro/tella/internal/ui"
)

var (
	// Version info - set during build via ldflags
	version = "dev"
	commit  = "none"
)

// flags holds the parsed command-line flags
type flags struct {
	settings   bool
	upgrade    bool
	history    int
	auto       bool
	dryRun     bool
	copy       bool
	configPath string
	verbose    bool
}

// App carries what one invocation needs
type App struct {
	flags flags

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	store  *config.Store
	logger *zap.Logger
	errs   *ui.Renderer

	exitCode int
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *App {
	return &App{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: zap.NewNop(),
		errs:   ui.NewRenderer(stderr, ui.Options{Color: ui.IsTerminal(stderr)}),
	}
}

// initialize sets up logging and the settings store once flags are parsed
func (a *App) initialize() error {
	logger, err := newLogger(a.flags.verbose || os.Getenv("TELLA_DEBUG") == "1")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.store = config.NewStore(a.flags.configPath)
	a.logger.Debug("settings file", zap.String("path", a.store.Path()))
	return nil
}

func (a *App) close() {
	_ = a.logger.Sync()
}

// newLogger returns a development logger on stderr when verbose, else a no-op
func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// newRenderer builds the stdout renderer for settings
func (a *App) newRenderer(s config.Settings) *ui.Renderer {
	return ui.NewRenderer(a.stdout, ui.Options{
		Color:           s.UI.ColorEnabled && ui.IsTerminal(a.stdout),
		ShowSummary:     s.UI.ShowSummary,
		ShowExplanation: s.UI.ShowExplanation,
		ShowRisk:        s.UI.ShowRisk,
	})
}

// newClient creates an LLM client from the effective settings
func newClient(s config.Settings, logger *zap.Logger) (*ai.Client, error) {
	backend, err := newBackend(s)
	if err != nil {
		return nil, err
	}
	return ai.NewClient(backend, ai.ClientConfig{
		Timeout:    time.Duration(s.Model.TimeoutSeconds) * time.Second,
		MaxRetries: s.Model.MaxRetries,
	}, logger.Named("ai")), nil
}

func newBackend(s config.Settings) (ai.Backend, error) {
	backend, err := ai.NewBackend(ai.Options{
		Provider:    s.Provider.Name,
		Endpoint:    s.Endpoint(),
		APIKey:      s.ResolveAPIKey(),
		Model:       s.Model.Name,
		Temperature: s.Model.Temperature,
		MaxTokens:   s.Model.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	return backend, nil
}

// reportError prints err to stderr with guidance where there is any
func (a *App) reportError(err error) {
	switch {
	case errors.Is(err, types.ErrUserAborted):
		fmt.Fprintln(a.stderr)
		a.errs.PrintWarning("Aborted")
	case errors.Is(err, types.ErrNotConfigured), errors.Is(err, types.ErrUnauthorized):
		a.errs.PrintError(err.Error())
		a.errs.PrintInfo("Run 'tella --settings' to choose a provider and API key")
	case errors.Is(err, errUsage):
		a.errs.PrintError(err.Error())
		a.errs.PrintInfo("Run 'tella --help' for usage")
	default:
		var refused *types.RefusedError
		if errors.As(err, &refused) {
			a.errs.PrintWarning(err.Error())
			return
		}
		a.errs.PrintError(err.Error())
	}
}
