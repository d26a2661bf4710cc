// Root command definition for tella CLI
package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// defaultHistoryLimit is used when --history has no count
const defaultHistoryLimit = 20

var errUsage = errors.New("usage error")

// newRootCmd creates and configures the root command
func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tella [query]",
		Short: "Natural language to shell commands, checked before they run",
		Long: `tella turns a plain-language request into a shell command, checks it
against local safety rules and runs it only after you confirm.

Examples:
  tella list files larger than 100MB
  tella --dry-run delete all .tmp files
  tella --history 10
  tella --history docker
  tella --settings`,
		Args:          cobra.ArbitraryArgs,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initialize()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMain(cmd, app, args)
		},
	}

	addRootFlags(rootCmd, &app.flags)

	// Everything after the first word of the query belongs to the query.
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	return rootCmd
}

// addRootFlags adds command-line flags to the root command
func addRootFlags(cmd *cobra.Command, f *flags) {
	cmd.Flags().BoolVar(&f.settings, "settings", false, "Run the interactive setup")
	cmd.Flags().BoolVar(&f.upgrade, "upgrade", false, "Show how to upgrade tella")
	cmd.Flags().IntVar(&f.history, "history", 0, "Show the last n suggestions; words after it search them")
	cmd.Flags().Lookup("history").NoOptDefVal = strconv.Itoa(defaultHistoryLimit)
	cmd.Flags().BoolVarP(&f.auto, "auto", "a", false, "Run SAFE commands without asking")
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "d", false, "Show the suggestion without running it")
	cmd.Flags().BoolVarP(&f.copy, "copy", "c", false, "Copy the command to the clipboard instead of running it")
	cmd.Flags().StringVar(&f.configPath, "config", "", "Settings file (default $TELLA_CONFIG or ~/.config/tella/config.yaml)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Debug logging to stderr")
}

// runMain dispatches on the mode flags, then handles a single query
func runMain(cmd *cobra.Command, app *App, args []string) error {
	ctx := cmd.Context()

	switch {
	case app.flags.upgrade:
		return app.runUpgrade()
	case app.flags.settings:
		return app.runSettings(ctx)
	case cmd.Flags().Changed("history"):
		limit, search, err := historyArgs(app.flags.history, args)
		if err != nil {
			return err
		}
		return app.runHistory(limit, search)
	}

	if len(args) == 0 {
		cmd.Help()
		app.exitCode = 2
		return nil
	}

	return app.runQuery(ctx, strings.Join(args, " "))
}

// historyArgs accepts --history=5, --history 5 and --history <text>. Any
// non-numeric words are a search over past queries and commands.
func historyArgs(flagValue int, args []string) (int, string, error) {
	if len(args) == 1 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			flagValue = n
			args = nil
		}
	}
	if flagValue <= 0 {
		return 0, "", fmt.Errorf("%w: --history must be positive", errUsage)
	}
	return flagValue, strings.Join(args, " "), nil
}
