// Package safety classifies shell commands into risk tiers
package safety

import (
	"regexp"
	"strings"

	"github.com/sonemaro/tella/internal/types"
)

// Rule categories
const (
	CategoryFilesystem = "filesystem-destructive"
	CategoryPrivilege  = "privilege-escalation"
	CategoryNetwork    = "network-exfiltration"
	CategorySystem     = "irreversible-system"
	CategoryProcess    = "process"
	CategoryVCS        = "vcs"
	CategoryPackages   = "packages"
	CategoryUser       = "user"
)

// matcher inspects a tokenized command.
type matcher func(t *tokens) bool

// Rule is a tagged matcher with the tier it assigns on a hit.
type Rule struct {
	Name        string
	Category    string
	Level       types.RiskLevel
	Description string
	match       matcher
}

// pattern matches a regular expression against the raw command text.
// Raw matching still works when the command fails to parse.
func pattern(expr string) matcher {
	re := regexp.MustCompile(expr)
	return func(t *tokens) bool { return re.MatchString(t.raw) }
}

// call matches when any simple command satisfies pred.
func call(pred func(Call) bool) matcher {
	return func(t *tokens) bool {
		for _, c := range t.calls {
			if pred(c) {
				return true
			}
		}
		return false
	}
}

// pipeInto matches a pipe from a command satisfying from into one satisfying to.
func pipeInto(from, to func(Call) bool) matcher {
	return func(t *tokens) bool {
		for _, p := range t.pipes {
			if from(p.from) && to(p.to) {
				return true
			}
		}
		return false
	}
}

// redirectTo matches an output redirect whose target satisfies pred.
func redirectTo(pred func(redirect) bool) matcher {
	return func(t *tokens) bool {
		for _, r := range t.redirects {
			if r.writesFile() && pred(r) {
				return true
			}
		}
		return false
	}
}

func named(names ...string) func(Call) bool {
	return func(c Call) bool { return c.Is(names...) }
}

var (
	systemDirs = map[string]bool{
		"": true, "~": true, "$HOME": true, "/bin": true, "/boot": true, "/dev": true,
		"/etc": true, "/home": true, "/lib": true, "/lib64": true, "/opt": true,
		"/proc": true, "/root": true, "/sbin": true, "/srv": true, "/sys": true,
		"/usr": true, "/var": true, "/System": true, "/Users": true,
		"/Applications": true, "/Library": true,
	}
	windowsRoot = regexp.MustCompile(`(?i)^([a-z]:[\\/]?\*?|[a-z]:[\\/]windows.*|\$env:(userprofile|systemroot|systemdrive|homedrive)[\\/]?\*?|~[\\/]?\*?)$`)
	authFiles   = regexp.MustCompile(`^/etc/(sudoers(\.d/.*)?|passwd|shadow|group|gshadow)$`)
	blockDevice = regexp.MustCompile(`^/dev/(sd[a-z]|hd[a-z]|vd[a-z]|xvd[a-z]|nvme\d|mmcblk\d|disk\d|rdisk\d)`)
)

// isSystemPath reports whether p names the filesystem root, the home
// directory or a top-level system directory.
func isSystemPath(p string) bool {
	p = strings.TrimSuffix(p, "*")
	p = strings.TrimRight(p, "/")
	return systemDirs[p]
}

func anySystemPath(paths []string) bool {
	for _, p := range paths {
		if isSystemPath(p) || windowsRoot.MatchString(p) {
			return true
		}
	}
	return false
}

func recursive(c Call) bool {
	return c.HasFlag('r', "recursive") || c.HasFlag('R', "")
}

func networkFetcher(c Call) bool {
	return c.Is("curl", "wget", "fetch", "iwr", "irm", "Invoke-WebRequest", "Invoke-RestMethod")
}

func shellInterpreter(c Call) bool {
	return isShell(c) || c.Is("python", "python3", "perl", "ruby", "node", "iex", "Invoke-Expression", "pwsh", "powershell")
}

// rules is evaluated in order; every hit is reported and the highest
// level wins.
var rules = []Rule{
	// filesystem-destructive
	{
		Name:        "rm-system-path",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Deletes the filesystem root, home or a system directory",
		match: call(func(c Call) bool {
			return c.Is("rm") && anySystemPath(c.Operands())
		}),
	},
	{
		Name:        "rm-no-preserve-root",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Disables the root directory safeguard",
		match:       call(func(c Call) bool { return c.Is("rm") && c.HasArg("--no-preserve-root") }),
	},
	{
		Name:        "rm-recursive",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Recursive or forced delete",
		match: call(func(c Call) bool {
			return c.Is("rm") && (recursive(c) || c.HasFlag('f', "force"))
		}),
	},
	{
		Name:        "rm",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Deletes files",
		match:       call(named("rm", "rmdir", "unlink")),
	},
	{
		Name:        "find-delete-system",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Deletes matches under a system directory",
		match: call(func(c Call) bool {
			return c.Is("find") && c.HasArg("-delete") && anySystemPath(c.Operands()[:min(1, len(c.Operands()))])
		}),
	},
	{
		Name:        "find-delete",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Deletes every file find matches",
		match:       call(func(c Call) bool { return c.Is("find") && c.HasArg("-delete") }),
	},
	{
		Name:        "mv-to-null",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Moves files into /dev/null",
		match: call(func(c Call) bool {
			ops := c.Operands()
			return c.Is("mv") && len(ops) > 0 && ops[len(ops)-1] == "/dev/null"
		}),
	},
	{
		Name:        "mv-system-path",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Moves a system directory",
		match: call(func(c Call) bool {
			ops := c.Operands()
			return c.Is("mv") && len(ops) > 1 && anySystemPath(ops[:len(ops)-1])
		}),
	},
	{
		Name:        "shred",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Secure delete, unrecoverable",
		match:       call(named("shred", "srm")),
	},
	{
		Name:        "truncate",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Truncates a file",
		match:       call(named("truncate")),
	},
	{
		Name:        "redirect-system-file",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Writes into /etc or a system directory",
		match: redirectTo(func(r redirect) bool {
			return strings.HasPrefix(r.target, "/etc/") || strings.HasPrefix(r.target, "/boot/") ||
				strings.HasPrefix(r.target, "/usr/") || strings.HasPrefix(r.target, "/sys/")
		}),
	},
	{
		Name:        "redirect-overwrite",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Overwrites a file through a redirect",
		match:       redirectTo(func(r redirect) bool { return r.overwrites() }),
	},
	{
		Name:        "clear-shell-history",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Clears shell history",
		match:       pattern(`history\s+-c|>\s*~/\.(bash|zsh)_history`),
	},
	{
		Name:        "chmod-system-path",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Changes permissions of a system directory",
		match: call(func(c Call) bool {
			ops := c.Operands()
			return c.Is("chmod", "chown", "chgrp") && len(ops) > 1 && anySystemPath(ops[1:])
		}),
	},
	{
		Name:        "chmod-world-writable",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Makes files world writable",
		match: call(func(c Call) bool {
			return c.Is("chmod") && (c.HasArg("777", "666", "a+w", "o+w", "a+rwx"))
		}),
	},
	{
		Name:        "chown-recursive",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Recursive ownership or permission change",
		match: call(func(c Call) bool {
			return c.Is("chown", "chmod", "chgrp") && recursive(c)
		}),
	},

	// privilege-escalation
	{
		Name:        "setuid",
		Category:    CategoryPrivilege,
		Level:       types.RiskDangerous,
		Description: "Sets the setuid or setgid bit",
		match: call(func(c Call) bool {
			if !c.Is("chmod") {
				return false
			}
			for _, a := range c.Args {
				if strings.Contains(a, "+s") || (len(a) == 4 && (a[0] == '4' || a[0] == '2' || a[0] == '6')) {
					return true
				}
			}
			return false
		}),
	},
	{
		Name:        "sudoers",
		Category:    CategoryPrivilege,
		Level:       types.RiskDangerous,
		Description: "Modifies sudoers or the password database",
		match: func(t *tokens) bool {
			if redirectTo(func(r redirect) bool { return authFiles.MatchString(r.target) })(t) {
				return true
			}
			return call(func(c Call) bool {
				writes := c.Is("tee", "cp", "mv", "ln", "install", "vi", "vim", "nano", "visudo", "chmod", "chown") ||
					(c.Is("sed") && c.HasFlag('i', "in-place"))
				if !writes {
					return false
				}
				for _, a := range c.Args {
					if authFiles.MatchString(a) {
						return true
					}
				}
				return false
			})(t)
		},
	},
	{
		Name:        "grant-admin-group",
		Category:    CategoryPrivilege,
		Level:       types.RiskDangerous,
		Description: "Adds a user to an admin group",
		match: call(func(c Call) bool {
			return c.Is("usermod", "gpasswd", "adduser", "dseditgroup") && c.HasArg("sudo", "wheel", "admin", "root")
		}),
	},
	{
		Name:        "elevated",
		Category:    CategoryPrivilege,
		Level:       types.RiskCaution,
		Description: "Runs with elevated privileges",
		match: call(func(c Call) bool {
			return c.WrappedBy("sudo", "doas") || c.Is("sudo", "doas", "su", "runas", "pkexec")
		}),
	},
	{
		Name:        "account-change",
		Category:    CategoryPrivilege,
		Level:       types.RiskCaution,
		Description: "Changes user accounts or passwords",
		match:       call(named("passwd", "useradd", "userdel", "usermod", "visudo", "chpasswd")),
	},

	// network-exfiltration
	{
		Name:        "pipe-to-shell",
		Category:    CategoryNetwork,
		Level:       types.RiskDangerous,
		Description: "Runs a downloaded script",
		match:       pipeInto(networkFetcher, shellInterpreter),
	},
	{
		Name:        "download-and-run",
		Category:    CategoryNetwork,
		Level:       types.RiskDangerous,
		Description: "Runs a downloaded script",
		match:       pattern(`(?i)(\b(sh|bash|zsh)\s+(-c\s+)?["']?\$\(\s*(curl|wget)|\b(sh|bash|zsh|source|\.)\s+<\(\s*(curl|wget)|\b(iex|invoke-expression)\b.*\b(iwr|irm|invoke-webrequest|invoke-restmethod|downloadstring)\b)`),
	},
	{
		Name:        "reverse-shell",
		Category:    CategoryNetwork,
		Level:       types.RiskDangerous,
		Description: "Opens a remote shell",
		match:       pattern(`/dev/tcp/|/dev/udp/|\b(nc|ncat|netcat)\b.*\s-[a-z]*[ec]\b`),
	},
	{
		Name:        "upload-secrets",
		Category:    CategoryNetwork,
		Level:       types.RiskDangerous,
		Description: "Sends credentials or keys over the network",
		match: call(func(c Call) bool {
			if !networkFetcher(c) && !c.Is("scp", "rsync", "nc", "ncat") {
				return false
			}
			for _, a := range c.Args {
				if strings.Contains(a, ".ssh/") || strings.Contains(a, ".aws/") || strings.Contains(a, "/etc/shadow") ||
					strings.Contains(a, "/etc/passwd") || strings.Contains(a, ".gnupg") || strings.Contains(a, ".env") {
					return true
				}
			}
			return false
		}),
	},
	{
		Name:        "upload",
		Category:    CategoryNetwork,
		Level:       types.RiskCaution,
		Description: "Uploads local data",
		match: call(func(c Call) bool {
			if !c.Is("curl") {
				return c.Is("scp", "rsync", "sftp", "ftp")
			}
			for i, a := range c.Args {
				if a == "-T" || a == "--upload-file" || strings.HasPrefix(a, "@") {
					return true
				}
				if (a == "-d" || a == "--data" || a == "--data-binary" || a == "-F" || a == "--form") &&
					i+1 < len(c.Args) && strings.Contains(c.Args[i+1], "@") {
					return true
				}
			}
			return false
		}),
	},
	{
		Name:        "network",
		Category:    CategoryNetwork,
		Level:       types.RiskCaution,
		Description: "Talks to the network",
		match:       call(func(c Call) bool { return networkFetcher(c) || c.Is("ssh", "nc", "ncat", "telnet") }),
	},

	// irreversible-system
	{
		Name:        "fork-bomb",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Fork bomb",
		match:       pattern(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
	},
	{
		Name:        "format-filesystem",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Formats a filesystem",
		match: call(func(c Call) bool {
			return strings.HasPrefix(strings.ToLower(c.Name), "mkfs") || c.Is("mkswap", "wipefs", "newfs")
		}),
	},
	{
		Name:        "partition",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Edits the partition table",
		match: call(func(c Call) bool {
			if c.Is("diskutil") {
				sub := c.Subcommand()
				return strings.HasPrefix(sub, "erase") || sub == "partitiondisk" || sub == "zerodisk"
			}
			return c.Is("fdisk", "sfdisk", "gdisk", "sgdisk", "parted", "cfdisk")
		}),
	},
	{
		Name:        "raw-disk-write",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Writes directly to a disk device",
		match: func(t *tokens) bool {
			for _, c := range t.calls {
				if !c.Is("dd") {
					continue
				}
				for _, a := range c.Args {
					if strings.HasPrefix(a, "of=") && blockDevice.MatchString(strings.TrimPrefix(a, "of=")) {
						return true
					}
				}
			}
			return redirectTo(func(r redirect) bool { return blockDevice.MatchString(r.target) })(t)
		},
	},
	{
		Name:        "dd",
		Category:    CategorySystem,
		Level:       types.RiskCaution,
		Description: "Low-level copy",
		match:       call(named("dd")),
	},
	{
		Name:        "power",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Shuts down or reboots the machine",
		match: call(func(c Call) bool {
			if c.Is("shutdown", "reboot", "halt", "poweroff", "Stop-Computer", "Restart-Computer") {
				return true
			}
			if c.Is("init", "telinit") {
				return c.HasArg("0", "6")
			}
			if c.Is("systemctl") {
				switch c.Subcommand() {
				case "poweroff", "reboot", "halt", "kexec":
					return true
				}
			}
			return false
		}),
	},
	{
		Name:        "kill-all",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Kills init or every process",
		match: call(func(c Call) bool {
			if !c.Is("kill") {
				return false
			}
			for i, a := range c.Args {
				if a == "1" && (i == 0 || (c.Args[i-1] != "-s" && c.Args[i-1] != "-n")) {
					return true
				}
				if a == "-1" && i > 0 {
					return true
				}
			}
			return false
		}),
	},
	{
		Name:        "crontab-remove",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Removes all cron jobs",
		match:       call(func(c Call) bool { return c.Is("crontab") && c.HasFlag('r', "") }),
	},
	{
		Name:        "firewall-flush",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Flushes firewall rules",
		match: call(func(c Call) bool {
			return (c.Is("iptables", "ip6tables") && (c.HasFlag('F', "flush") || c.HasArg("-X"))) ||
				(c.Is("ufw") && c.Subcommand() == "disable") || (c.Is("nft") && c.HasArg("flush"))
		}),
	},
	{
		Name:        "service-change",
		Category:    CategorySystem,
		Level:       types.RiskCaution,
		Description: "Stops or disables a system service",
		match: call(func(c Call) bool {
			switch {
			case c.Is("systemctl", "service"):
				return c.HasArg("stop", "disable", "mask", "restart")
			case c.Is("launchctl"):
				return c.HasArg("unload", "remove", "bootout")
			case c.Is("Stop-Service", "Set-Service"):
				return true
			}
			return false
		}),
	},

	// process
	{
		Name:        "kill",
		Category:    CategoryProcess,
		Level:       types.RiskCaution,
		Description: "Terminates processes",
		match:       call(named("kill", "pkill", "killall", "Stop-Process", "taskkill")),
	},

	// vcs
	{
		Name:        "git-force-push",
		Category:    CategoryVCS,
		Level:       types.RiskCaution,
		Description: "Force push can overwrite remote history",
		match: call(func(c Call) bool {
			return c.Is("git") && c.Subcommand() == "push" && (c.HasFlag('f', "force") || c.HasArg("--force-with-lease", "--mirror", "--delete"))
		}),
	},
	{
		Name:        "git-discard",
		Category:    CategoryVCS,
		Level:       types.RiskCaution,
		Description: "Discards local changes",
		match: call(func(c Call) bool {
			if !c.Is("git") {
				return false
			}
			switch c.Subcommand() {
			case "reset":
				return c.HasArg("--hard")
			case "clean":
				return c.HasFlag('f', "force")
			case "checkout", "restore":
				return c.HasArg(".", "--", "-f")
			case "branch":
				return c.HasArg("-D")
			case "stash":
				return c.HasArg("drop", "clear")
			case "filter-branch", "filter-repo":
				return true
			}
			return false
		}),
	},

	// packages
	{
		Name:        "package-remove",
		Category:    CategoryPackages,
		Level:       types.RiskCaution,
		Description: "Removes packages",
		match: call(func(c Call) bool {
			switch {
			case c.Is("apt", "apt-get", "yum", "dnf", "zypper", "snap"):
				return c.HasArg("remove", "purge", "autoremove", "erase")
			case c.Is("brew", "npm", "pip", "pip3", "cargo", "choco", "winget", "scoop"):
				return c.HasArg("uninstall", "remove", "rm")
			case c.Is("pacman"):
				return c.HasFlag('R', "remove")
			case c.Is("Uninstall-Package", "Remove-AppxPackage"):
				return true
			}
			return false
		}),
	},
	{
		Name:        "package-install",
		Category:    CategoryPackages,
		Level:       types.RiskCaution,
		Description: "Installs or upgrades packages",
		match: call(func(c Call) bool {
			return c.Is("apt", "apt-get", "yum", "dnf", "brew", "npm", "pip", "pip3", "pacman", "choco", "winget") &&
				c.HasArg("install", "upgrade", "update", "-S", "-Syu")
		}),
	},
	{
		Name:        "container-prune",
		Category:    CategorySystem,
		Level:       types.RiskCaution,
		Description: "Removes containers, images or volumes",
		match: call(func(c Call) bool {
			if !c.Is("docker", "podman") {
				return false
			}
			return c.HasArg("prune", "rm", "rmi") || (c.Subcommand() == "volume" && c.HasArg("rm"))
		}),
	},
	{
		Name:        "kubectl-delete",
		Category:    CategorySystem,
		Level:       types.RiskCaution,
		Description: "Deletes cluster resources",
		match: call(func(c Call) bool {
			return c.Is("kubectl", "helm") && c.HasArg("delete", "uninstall", "drain")
		}),
	},

	// PowerShell and cmd.exe
	{
		Name:        "ps-remove-root",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Recursively deletes a drive root, the profile or Windows directory",
		match: call(func(c Call) bool {
			return c.Is("Remove-Item", "ri", "del", "erase", "rd", "rmdir") && anySystemPath(c.Args)
		}),
	},
	{
		Name:        "ps-remove-recursive",
		Category:    CategoryFilesystem,
		Level:       types.RiskCaution,
		Description: "Deletes items",
		match:       call(named("Remove-Item", "ri", "del", "erase", "rd", "Clear-Content", "Clear-RecycleBin")),
	},
	{
		Name:        "delete-drive-root",
		Category:    CategoryFilesystem,
		Level:       types.RiskDangerous,
		Description: "Deletes a drive root or the user profile",
		match:       pattern(`(?i)\b(remove-item|ri|rd|rmdir|del|erase)\b[^|;&]*\s['"]?([a-z]:[\\/]?\*?|\$env:(userprofile|systemroot|systemdrive)[\\/]?\*?)['"]?(\s|$)`),
	},
	{
		Name:        "ps-format",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Formats or wipes a disk",
		match: func(t *tokens) bool {
			return call(named("Format-Volume", "Clear-Disk", "Initialize-Disk", "Remove-Partition", "diskpart"))(t) ||
				pattern(`(?i)^\s*format(\.com)?\s+[a-z]:`)(t)
		},
	},
	{
		Name:        "ps-registry-delete",
		Category:    CategorySystem,
		Level:       types.RiskDangerous,
		Description: "Deletes registry keys",
		match: func(t *tokens) bool {
			return pattern(`(?i)\breg(\.exe)?\s+delete\b`)(t) ||
				call(func(c Call) bool {
					return c.Is("Remove-Item", "Remove-ItemProperty") && strings.Contains(strings.Join(c.Args, " "), "HK")
				})(t)
		},
	},
	{
		Name:        "ps-execution-policy",
		Category:    CategoryPrivilege,
		Level:       types.RiskCaution,
		Description: "Relaxes the PowerShell execution policy",
		match:       call(named("Set-ExecutionPolicy")),
	},
	{
		Name:        "ps-elevated",
		Category:    CategoryPrivilege,
		Level:       types.RiskCaution,
		Description: "Starts an elevated process",
		match: call(func(c Call) bool {
			return c.Is("Start-Process") && c.HasArg("RunAs")
		}),
	},
	{
		Name:        "ps-invoke-expression",
		Category:    CategoryNetwork,
		Level:       types.RiskCaution,
		Description: "Evaluates a string as code",
		match:       call(named("Invoke-Expression", "iex")),
	},
}

// Rules returns the built-in rule table.
func Rules() []Rule {
	return rules
}

// RulesByCategory returns built-in rules filtered by category.
func RulesByCategory(category string) []Rule {
	var result []Rule
	for _, r := range rules {
		if r.Category == category {
			result = append(result, r)
		}
	}
	return result
}
