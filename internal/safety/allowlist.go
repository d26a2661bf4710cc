package safety

import "strings"

// readOnlyCommands never modify state on their own.
var readOnlyCommands = map[string]bool{
	"ls": true, "pwd": true, "echo": true, "printf": true, "cat": true, "head": true,
	"tail": true, "less": true, "more": true, "grep": true, "egrep": true, "fgrep": true,
	"rg": true, "wc": true, "sort": true, "uniq": true, "cut": true, "tr": true,
	"date": true, "cal": true, "whoami": true, "id": true, "hostname": true, "uname": true,
	"uptime": true, "df": true, "du": true, "free": true, "ps": true, "top": true,
	"which": true, "whereis": true, "type": true, "file": true, "stat": true, "tree": true,
	"env": true, "printenv": true, "basename": true, "dirname": true, "realpath": true,
	"readlink": true, "diff": true, "cmp": true, "md5sum": true, "sha1sum": true,
	"sha256sum": true, "shasum": true, "lsblk": true, "lscpu": true, "lsof": true,
	"jq": true, "column": true, "nl": true, "true": true, "false": true, "dir": true,
	"man": true, "history": true, "locale": true, "groups": true, "nproc": true,
}

var gitReadOnly = map[string]bool{
	"status": true, "log": true, "diff": true, "show": true, "blame": true,
	"shortlog": true, "describe": true, "rev-parse": true, "ls-files": true,
	"ls-tree": true, "grep": true, "reflog": true, "whatchanged": true, "version": true,
}

var dockerReadOnly = map[string]bool{
	"ps": true, "images": true, "logs": true, "inspect": true, "version": true,
	"info": true, "top": true, "port": true, "history": true,
}

var kubectlReadOnly = map[string]bool{
	"get": true, "describe": true, "logs": true, "top": true, "version": true,
	"explain": true, "api-resources": true, "api-versions": true, "cluster-info": true,
}

// psReadOnly lists PowerShell cmdlets outside the Get- family that only
// shape output.
var psReadOnly = map[string]bool{
	"select-object": true, "sort-object": true, "where-object": true,
	"format-table": true, "format-list": true, "measure-object": true,
	"select-string": true, "write-output": true, "write-host": true,
	"test-path": true, "resolve-path": true, "gci": true, "gc": true, "gl": true,
}

// writerOptions are options that make an otherwise read-only command
// write files, change system state or run another program.
var writerOptions = map[string][]string{
	"sort":     {"-o", "--output", "--compress-program"},
	"tree":     {"-o"},
	"rg":       {"--pre"},
	"man":      {"-P", "--pager", "-H", "--html"},
	"less":     {"-o", "-O", "--log-file", "--LOG-FILE"},
	"more":     {"-o", "-O", "--log-file", "--LOG-FILE"},
	"date":     {"--set"},
	"hostname": {"-F", "--file", "-b", "--boot"},
	"file":     {"-C", "--compile"},
	"history":  {"-c", "-d", "-w", "-a", "-r", "-n", "-s"},
	"env":      {"-S", "--split-string"},
}

// findWriters are find actions that run commands or write files.
var findWriters = []string{"-delete", "-exec", "-execdir", "-ok", "-okdir", "-fprint", "-fprint0", "-fprintf", "-fls"}

// allowListed reports whether every call is known read-only and no
// output lands in a file.
func allowListed(t *tokens) bool {
	if len(t.calls) == 0 {
		return false
	}
	for _, r := range t.redirects {
		if r.writesFile() {
			return false
		}
	}
	for _, c := range t.calls {
		if c.written {
			continue
		}
		if !readOnly(c) {
			return false
		}
	}
	return true
}

func readOnly(c Call) bool {
	if c.Dynamic || c.Name == "" || c.WrappedBy("sudo", "doas", "xargs") {
		return false
	}
	name := strings.ToLower(c.Name)

	switch {
	case readOnlyCommands[name]:
		return !hasOption(c.Args, writerOptions[name]) && !writesOperand(name, c.Args)
	case name == "find":
		for _, a := range c.Args {
			if containsString(findWriters, a) {
				return false
			}
		}
		return true
	case name == "git":
		return gitReadOnlyCall(c)
	case name == "docker" || name == "podman":
		return dockerReadOnlyCall(c)
	case name == "kubectl":
		return kubectlReadOnlyCall(c)
	case strings.HasPrefix(name, "get-"):
		return true
	case psReadOnly[name]:
		return true
	}
	return false
}

// hasOption reports whether args carry one of options. Short options are
// also found inside a bundle (-ro) and long ones in --name=value form.
func hasOption(args, options []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		for _, o := range options {
			switch {
			case a == o:
				return true
			case strings.HasPrefix(o, "--"):
				if strings.HasPrefix(a, o+"=") {
					return true
				}
			case len(a) > 1 && a[0] == '-' && a[1] != '-' && strings.IndexByte(a[1:], o[1]) >= 0:
				return true
			}
		}
	}
	return false
}

// writesOperand covers commands whose operands change something: uniq IN
// OUT, date MMDDhhmm or date -s, and hostname NAME.
func writesOperand(name string, args []string) bool {
	switch name {
	case "uniq":
		return len(positional(args, "-f", "-s", "-w")) > 1
	case "date":
		for _, a := range args {
			// -s takes its value attached or next; -Iseconds is not -s
			if strings.HasPrefix(a, "-s") {
				return true
			}
		}
		for _, op := range positional(args, "-d", "-r", "-f") {
			if !strings.HasPrefix(op, "+") {
				return true
			}
		}
	case "hostname":
		return len(positional(args)) > 0
	}
	return false
}

// positional returns the operands of args, skipping the value after any
// of valueFlags.
func positional(args []string, valueFlags ...string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return append(out, args[i+1:]...)
		}
		if strings.HasPrefix(a, "-") && a != "-" {
			if containsString(valueFlags, a) {
				i++
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

func gitReadOnlyCall(c Call) bool {
	// options that write a file or run a pager or diff program
	if hasOption(c.Args, []string{"--output", "--ext-diff", "--open-files-in-pager", "-O"}) {
		return false
	}

	args := c.Args
	// global options such as -C <dir>
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		// -c, --config-env and --exec-path can point git at any program
		if strings.HasPrefix(args[0], "-c") || strings.HasPrefix(args[0], "--config-env") || strings.HasPrefix(args[0], "--exec-path") {
			return false
		}
		if args[0] == "-C" {
			if len(args) < 2 {
				return false
			}
			args = args[1:]
		}
		args = args[1:]
	}
	if len(args) == 0 {
		return false
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "branch":
		return onlyArgs(rest, "-a", "-r", "-v", "-vv", "--list", "--all", "--show-current")
	case "remote":
		return onlyArgs(rest, "-v", "--verbose")
	case "tag":
		return onlyArgs(rest, "-l", "--list")
	case "stash":
		return len(rest) > 0 && (rest[0] == "list" || rest[0] == "show")
	case "config":
		return len(rest) > 0 && (rest[0] == "--get" || rest[0] == "--list" || rest[0] == "-l")
	}
	return gitReadOnly[sub]
}

func dockerReadOnlyCall(c Call) bool {
	ops := c.Operands()
	if len(ops) == 0 {
		return false
	}
	if dockerReadOnly[ops[0]] {
		return true
	}
	if len(ops) > 1 {
		switch ops[0] {
		case "container", "image", "volume", "network":
			return ops[1] == "ls" || ops[1] == "list" || ops[1] == "inspect"
		}
	}
	return false
}

func kubectlReadOnlyCall(c Call) bool {
	ops := c.Operands()
	if len(ops) == 0 {
		return false
	}
	if kubectlReadOnly[ops[0]] {
		return true
	}
	if ops[0] == "config" && len(ops) > 1 {
		switch ops[1] {
		case "view", "get-contexts", "current-context":
			return true
		}
	}
	return false
}

func onlyArgs(args []string, allowed ...string) bool {
	for _, a := range args {
		if !containsString(allowed, a) {
			return false
		}
	}
	return true
}
