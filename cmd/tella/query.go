// Single query handling for tella CLI
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sonemaro/tella/internal/config"
	"github.com/sonemaro/tella/internal/controller"
	"github.com/sonemaro/tella/internal/history"
	"github.com/sonemaro/tella/internal/safety"
	"github.com/sonemaro/tella/internal/shell"
	"github.com/sonemaro/tella/internal/types"
	"github.com/sonemaro/tella/internal/ui"
)

// runQuery takes query through suggestion, safety check and confirmation
func (a *App) runQuery(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return types.ErrEmptyQuery
	}

	stored, err := a.store.Load()
	if err != nil {
		return err
	}
	settings := stored.WithEnvOverrides()

	client, err := newClient(settings, a.logger)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(settings.Safety)
	if err != nil {
		return err
	}

	renderer := a.newRenderer(settings)
	wd, _ := os.Getwd()

	deps := controller.Deps{
		Suggester:     client,
		Classifier:    classifier,
		Executor:      shell.NewExecutor(),
		Prompter:      ui.NewPrompter(a.stdin, a.stdout),
		View:          renderer,
		Clipboard:     ui.NewClipboard(),
		SystemContext: shell.GetSystemContext,
		Logger:        a.logger.Named("controller"),
	}

	if settings.History.Enabled {
		store, err := a.openHistory(settings.History)
		if err != nil {
			// Non-fatal, continue without history
			renderer.PrintWarning(fmt.Sprintf("Could not open history: %v", err))
		} else {
			defer store.Close()
			deps.Recorder = store
		}
	}

	ctrl := controller.New(deps, controller.Options{
		AutoRunSafe: a.flags.auto || settings.AutoRunSafe(),
		DryRun:      a.flags.dryRun,
		Copy:        a.flags.copy,
		Provider:    settings.Provider.Name,
		Model:       settings.Model.Name,
		WorkingDir:  wd,
	})

	result, err := ctrl.Run(ctx, query)
	a.logger.Debug("query finished",
		zap.Stringer("state", result.State),
		zap.Int("exit_code", result.ExitCode))

	a.exitCode = result.ExitCode
	if result.State == controller.StateAborted {
		return err
	}
	return nil
}

// newClassifier builds the rule set with the user's blocked commands and
// custom rules
func newClassifier(s config.SafetyConfig) (*safety.Classifier, error) {
	custom, err := safety.LoadRules(s.CustomRulesPath)
	if err != nil {
		return nil, err
	}
	return safety.NewClassifier(s.BlockedCommands, custom)
}

// openHistory opens the history store and drops entries past retention
func (a *App) openHistory(h config.HistoryConfig) (*history.Store, error) {
	store, err := history.NewStore(h.DBPath)
	if err != nil {
		return nil, err
	}
	if n, err := store.Cleanup(h.RetentionDays); err != nil {
		a.logger.Warn("history cleanup failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Debug("history cleanup", zap.Int64("removed", n))
	}
	return store, nil
}
