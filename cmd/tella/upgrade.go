// Upgrade guidance for tella CLI
package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/sonemaro/tella/internal/shell"
)

const modulePath = "github.com/sonemaro/tella/cmd/tella"

// upgradeCommands maps a package manager to the command that updates tella
var upgradeCommands = []struct {
	manager string
	command string
}{
	{"brew", "brew upgrade tella"},
	{"scoop", "scoop update tella"},
	{"winget", "winget upgrade tella"},
}

// runUpgrade prints how to update tella. tella never replaces itself.
func (a *App) runUpgrade() error {
	printUpgrade(a.stdout, shell.GetSystemContext().InstalledPkgMgrs)
	return nil
}

func printUpgrade(out io.Writer, managers []string) {
	fmt.Fprintf(out, "tella %s (commit: %s)\n\n", version, commit)
	fmt.Fprintln(out, "Upgrade with the tool that installed tella:")
	for _, u := range upgradeCommands {
		if slices.Contains(managers, u.manager) {
			fmt.Fprintf(out, "  %s\n", u.command)
		}
	}
	fmt.Fprintf(out, "  go install %s@latest\n", modulePath)
}
