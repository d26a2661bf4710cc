// Package shell provides context detection and command execution
package shell

import (
	"context"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sonemaro/tella/internal/types"
)

// gitTimeout bounds the git branch lookup so a slow repo never delays a query
const gitTimeout = 500 * time.Millisecond

// GetSystemContext gathers information about the current system
func GetSystemContext() types.SystemContext {
	ctx := types.SystemContext{
		OS:    runtime.GOOS,
		Shell: getShell(runtime.GOOS),
	}

	if dir, err := os.Getwd(); err == nil {
		ctx.CurrentDir = dir
	}

	if home, err := os.UserHomeDir(); err == nil {
		ctx.HomeDir = home
	}

	if u, err := user.Current(); err == nil {
		ctx.Username = u.Username
	}

	ctx.GitBranch = getGitBranch()
	ctx.InstalledPkgMgrs = detectPackageManagers()

	return ctx
}

// getShell returns the name of the user's shell
func getShell(goos string) string {
	if goos == "windows" {
		return "powershell"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return filepath.Base(shell)
	}
	return "sh"
}

// getGitBranch returns the current git branch if in a git repo
func getGitBranch() string {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "branch", "--show-current").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

var packageManagers = []string{
	"brew", "apt", "dnf", "yum", "pacman", "zypper", "apk",
	"winget", "choco", "scoop",
	"npm", "pnpm", "yarn", "pip3", "cargo", "go",
}

// detectPackageManagers returns the package managers found on PATH, sorted
func detectPackageManagers() []string {
	var managers []string
	for _, name := range packageManagers {
		if _, err := exec.LookPath(name); err == nil {
			managers = append(managers, name)
		}
	}
	sort.Strings(managers)
	return managers
}
