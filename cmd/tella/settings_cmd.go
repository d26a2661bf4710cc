// Settings flow for tella CLI
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sonemaro/tella/internal/config"
)

// modelListTimeout bounds the model list request during setup
const modelListTimeout = 10 * time.Second

// runSettings runs the setup wizard and saves the result
func (a *App) runSettings(ctx context.Context) error {
	current, err := a.store.LoadOrDefault()
	if err != nil {
		a.errs.PrintWarning(fmt.Sprintf("Ignoring unreadable settings: %v", err))
		current = config.DefaultSettings()
	}

	wizard := config.NewWizard(a.stdin, a.stdout, listModels)
	updated, err := wizard.Run(ctx, current)
	if err != nil {
		return err
	}

	if err := a.store.Save(updated); err != nil {
		return err
	}

	renderer := a.newRenderer(updated)
	if result := config.Validate(updated); result.HasWarnings() {
		fmt.Fprint(a.stdout, result.String())
	}
	renderer.PrintSuccess(fmt.Sprintf("Settings saved to %s", a.store.Path()))
	return nil
}

// listModels asks the configured provider for its models
func listModels(ctx context.Context, s config.Settings) ([]string, error) {
	if s.Provider.Name == config.ProviderCerebras {
		return config.CerebrasModels, nil
	}

	backend, err := newBackend(s)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, modelListTimeout)
	defer cancel()
	return backend.ListModels(ctx)
}
