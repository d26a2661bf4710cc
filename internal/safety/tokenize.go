package safety

import (
	"slices"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// maxScriptDepth bounds recursion into `sh -c` and eval scripts.
const maxScriptDepth = 4

// Call is a simple command with wrappers such as sudo or env peeled off.
type Call struct {
	Name     string
	Args     []string
	Wrappers []string
	// Dynamic is set when the command name comes from an expansion.
	Dynamic bool
	// written is the form before escapes are removed; it only adds matches.
	written bool
}

// Is reports whether the call name matches any of names, ignoring case.
func (c Call) Is(names ...string) bool {
	for _, n := range names {
		if strings.EqualFold(c.Name, n) {
			return true
		}
	}
	return false
}

// WrappedBy reports whether any wrapper matches one of names.
func (c Call) WrappedBy(names ...string) bool {
	for _, w := range c.Wrappers {
		for _, n := range names {
			if strings.EqualFold(w, n) {
				return true
			}
		}
	}
	return false
}

// HasFlag reports whether a POSIX style flag is present, either bundled
// into a short option group (-rf) or spelled out (--recursive).
func (c Call) HasFlag(short byte, long string) bool {
	for _, a := range c.Args {
		if a == "--" {
			return false
		}
		if long != "" && a == "--"+long {
			return true
		}
		if short != 0 && len(a) > 1 && a[0] == '-' && a[1] != '-' && strings.IndexByte(a[1:], short) >= 0 {
			return true
		}
	}
	return false
}

// HasArg reports whether any argument equals one of values, ignoring case.
func (c Call) HasArg(values ...string) bool {
	for _, a := range c.Args {
		for _, v := range values {
			if strings.EqualFold(a, v) {
				return true
			}
		}
	}
	return false
}

// PSFlag reports whether a PowerShell parameter (possibly abbreviated) is present.
func (c Call) PSFlag(name string) bool {
	for _, a := range c.Args {
		if len(a) < 3 || a[0] != '-' {
			continue
		}
		p := strings.ToLower(strings.TrimSuffix(a[1:], ":"))
		if i := strings.IndexByte(p, ':'); i > 0 {
			p = p[:i]
		}
		if len(p) >= 3 && strings.HasPrefix(strings.ToLower(name), p) {
			return true
		}
	}
	return false
}

// Operands returns the non-flag arguments.
func (c Call) Operands() []string {
	var out []string
	endOfFlags := false
	for _, a := range c.Args {
		if !endOfFlags && a == "--" {
			endOfFlags = true
			continue
		}
		if !endOfFlags && strings.HasPrefix(a, "-") && a != "-" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Subcommand returns the first operand, lowercased.
func (c Call) Subcommand() string {
	ops := c.Operands()
	if len(ops) == 0 {
		return ""
	}
	return strings.ToLower(ops[0])
}

type pipe struct {
	from, to Call
}

type redirect struct {
	op     syntax.RedirOperator
	target string
}

// writesFile reports whether the redirect sends output to a real file.
func (r redirect) writesFile() bool {
	switch r.op {
	case syntax.RdrOut, syntax.AppOut, syntax.RdrAll, syntax.AppAll, syntax.ClbOut, syntax.RdrInOut:
		return r.target != "/dev/null" && !strings.EqualFold(r.target, "$null") && !strings.EqualFold(r.target, "nul")
	}
	return false
}

// overwrites reports whether the redirect truncates its target.
func (r redirect) overwrites() bool {
	switch r.op {
	case syntax.RdrOut, syntax.RdrAll, syntax.ClbOut:
		return r.writesFile()
	}
	return false
}

// tokens is the parsed view of a command that rules match against.
type tokens struct {
	raw       string
	calls     []Call
	pipes     []pipe
	redirects []redirect
	parseErr  error
}

func tokenize(command string) *tokens {
	t := &tokens{raw: command}
	t.parse(command, 0)
	return t
}

// parse records the calls of script one statement at a time. The shell
// runs every statement before a syntax error, so those are kept.
func (t *tokens) parse(script string, depth int) {
	err := syntax.NewParser().Stmts(strings.NewReader(script), func(stmt *syntax.Stmt) bool {
		t.walk(stmt, depth)
		return true
	})
	if err != nil && t.parseErr == nil {
		t.parseErr = err
	}
}

func (t *tokens) walk(root syntax.Node, depth int) {
	syntax.Walk(root, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CallExpr:
			for _, c := range toCalls(n) {
				t.addCall(c, depth)
			}
		case *syntax.Redirect:
			target := ""
			if n.Word != nil {
				target, _ = wordText(n.Word)
			}
			t.redirects = append(t.redirects, redirect{op: n.Op, target: target})
		case *syntax.BinaryCmd:
			if n.Op == syntax.Pipe || n.Op == syntax.PipeAll {
				from, okFrom := lastCall(n.X)
				to, okTo := firstCall(n.Y)
				if okFrom && okTo {
					t.pipes = append(t.pipes, pipe{from: from, to: to})
				}
			}
		}
		return true
	})
}

// addCall records c and descends into any script it carries.
func (t *tokens) addCall(c Call, depth int) {
	t.calls = append(t.calls, c)
	if depth >= maxScriptDepth {
		return
	}

	switch {
	case isShell(c):
		if script, ok := shellScript(c); ok {
			t.parse(script, depth+1)
		}
	case c.Is("env"):
		if script, ok := envScript(c); ok {
			t.parse(script, depth+1)
		}
	case c.Is("git"):
		for _, script := range gitConfigScripts(c) {
			t.parse(script, depth+1)
		}
	case c.Is("eval"):
		if len(c.Args) > 0 {
			t.parse(strings.Join(c.Args, " "), depth+1)
		}
	case c.Is("find"):
		for _, inner := range findExecs(c) {
			t.addCall(inner, depth+1)
		}
	}
}

func isShell(c Call) bool {
	return c.Is("sh", "bash", "zsh", "dash", "ksh", "fish")
}

// shellScript extracts the script passed with -c.
func shellScript(c Call) (string, bool) {
	for i, a := range c.Args {
		if len(a) > 1 && a[0] == '-' && a[1] != '-' && strings.IndexByte(a, 'c') > 0 {
			if i+1 < len(c.Args) {
				return c.Args[i+1], true
			}
		}
	}
	return "", false
}

func isSplitString(a string) bool {
	return strings.HasPrefix(a, "-S") || a == "--split-string" || strings.HasPrefix(a, "--split-string=")
}

// envScript returns the command line given to env -S along with any
// arguments that follow it.
func envScript(c Call) (string, bool) {
	for i := 0; i < len(c.Args); i++ {
		a := c.Args[i]
		if a == "--" {
			return "", false
		}
		if !strings.HasPrefix(a, "-") {
			if strings.Contains(a, "=") {
				continue
			}
			return "", false
		}
		if !isSplitString(a) {
			if containsString(wrapperFlagsWithValue["env"], a) {
				i++
			}
			continue
		}
		var script string
		rest := c.Args[i+1:]
		switch {
		case a == "-S" || a == "--split-string":
			if len(rest) == 0 {
				return "", false
			}
			script, rest = rest[0], rest[1:]
		case strings.HasPrefix(a, "--split-string="):
			script = strings.TrimPrefix(a, "--split-string=")
		default:
			script = strings.TrimPrefix(a, "-S")
		}
		return strings.Join(append([]string{script}, rest...), " "), true
	}
	return "", false
}

// gitCommandKeys are config keys whose value git runs as a shell command.
var gitCommandKeys = []string{
	"core.pager", "core.sshcommand", "core.editor", "core.fsmonitor",
	"diff.external", "sequence.editor", "gpg.program",
}

// gitConfigScripts returns the commands set with git -c key=value.
func gitConfigScripts(c Call) []string {
	var out []string
	for i := 0; i < len(c.Args); i++ {
		a := c.Args[i]
		if !strings.HasPrefix(a, "-") {
			break
		}
		if a == "-C" {
			i++
			continue
		}
		if a != "-c" || i+1 == len(c.Args) {
			continue
		}
		i++
		key, value, ok := strings.Cut(c.Args[i], "=")
		if !ok {
			continue
		}
		key = strings.ToLower(key)
		switch {
		case containsString(gitCommandKeys, key), strings.HasPrefix(key, "pager."):
			out = append(out, value)
		case strings.HasPrefix(key, "alias."), key == "credential.helper":
			// only values starting with ! are run by the shell
			if script, ok := strings.CutPrefix(value, "!"); ok {
				out = append(out, script)
			}
		}
	}
	return out
}

// findExecs returns the commands run by find -exec/-execdir/-ok.
func findExecs(c Call) []Call {
	var out []Call
	for i := 0; i < len(c.Args); i++ {
		switch c.Args[i] {
		case "-exec", "-execdir", "-ok", "-okdir":
		default:
			continue
		}
		j := i + 1
		for j < len(c.Args) && c.Args[j] != ";" && c.Args[j] != `\;` && c.Args[j] != "+" {
			j++
		}
		if j > i+1 {
			out = append(out, peel(c.Args[i+1], c.Args[i+2:j], false))
		}
		i = j
	}
	return out
}

func toCall(call *syntax.CallExpr) Call {
	return renderCall(call, true)
}

// toCalls returns the call as the shell runs it and, when escapes changed
// any word, also as written so Windows paths keep their backslashes.
func toCalls(call *syntax.CallExpr) []Call {
	c := renderCall(call, true)
	written := renderCall(call, false)
	if c.Name == written.Name && slices.Equal(c.Args, written.Args) {
		return []Call{c}
	}
	written.written = true
	return []Call{c, written}
}

func renderCall(call *syntax.CallExpr, unquote bool) Call {
	if len(call.Args) == 0 {
		return Call{Dynamic: true}
	}
	name, static := renderWord(call.Args[0], unquote)
	args := make([]string, 0, len(call.Args)-1)
	for _, w := range call.Args[1:] {
		s, _ := renderWord(w, unquote)
		args = append(args, s)
	}
	return peel(name, args, !static)
}

// wrapperFlagsWithValue lists options of wrapper commands that consume the
// following argument.
var wrapperFlagsWithValue = map[string][]string{
	"sudo":    {"-u", "-g", "-U", "-C", "-D", "-h", "-p", "-r", "-t", "--user", "--group"},
	"doas":    {"-u", "-C"},
	"env":     {"-u", "-C", "--unset", "--chdir"},
	"nice":    {"-n", "--adjustment"},
	"timeout": {"-s", "-k", "--signal", "--kill-after"},
	"xargs":   {"-I", "-n", "-P", "-d", "-L", "-s", "-E", "-a", "--max-args", "--max-procs", "--delimiter", "--arg-file"},
	"watch":   {"-n", "-d", "--interval"},
	"nohup":   nil,
	"time":    nil,
	"command": nil,
	"exec":    nil,
	"builtin": nil,
	"stdbuf":  nil,
}

// peel strips wrapper commands so rules see the command actually run.
func peel(name string, args []string, dynamic bool) Call {
	var wrappers []string
	for !dynamic {
		key := strings.ToLower(baseName(name))
		valueFlags, isWrapper := wrapperFlagsWithValue[key]
		if !isWrapper {
			break
		}

		i := 0
		for i < len(args) {
			a := args[i]
			if a == "--" {
				i++
				break
			}
			if key == "env" && !strings.HasPrefix(a, "-") && strings.Contains(a, "=") {
				i++
				continue
			}
			if !strings.HasPrefix(a, "-") {
				break
			}
			if key == "env" && isSplitString(a) {
				// the script is parsed on its own in addCall
				return Call{Name: baseName(name), Args: args, Wrappers: wrappers}
			}
			i++
			if containsString(valueFlags, a) {
				i++
			}
		}
		if key == "timeout" && i < len(args) {
			i++ // duration
		}
		if i >= len(args) {
			break
		}

		wrappers = append(wrappers, key)
		name, args = args[i], args[i+1:]
	}

	return Call{
		Name:     baseName(name),
		Args:     args,
		Wrappers: wrappers,
		Dynamic:  dynamic,
	}
}

func baseName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}

func firstCall(stmt *syntax.Stmt) (Call, bool) {
	if stmt == nil {
		return Call{}, false
	}
	switch c := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return toCall(c), true
	case *syntax.BinaryCmd:
		return firstCall(c.X)
	}
	return Call{}, false
}

func lastCall(stmt *syntax.Stmt) (Call, bool) {
	if stmt == nil {
		return Call{}, false
	}
	switch c := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return toCall(c), true
	case *syntax.BinaryCmd:
		return lastCall(c.Y)
	}
	return Call{}, false
}

// wordText renders a word as the shell would see it after quote removal.
// The bool is false when the word contains expansions whose value is only
// known at run time; those are kept as written.
func wordText(word *syntax.Word) (string, bool) {
	return renderWord(word, true)
}

func renderWord(word *syntax.Word, unquote bool) (string, bool) {
	var sb strings.Builder
	static := true
	for _, part := range word.Parts {
		writeWordPart(&sb, part, unquote, false, &static)
	}
	return sb.String(), static
}

func writeWordPart(sb *strings.Builder, part syntax.WordPart, unquote, quoted bool, static *bool) {
	switch p := part.(type) {
	case *syntax.Lit:
		if unquote {
			sb.WriteString(unescape(p.Value, quoted))
		} else {
			sb.WriteString(p.Value)
		}
	case *syntax.SglQuoted:
		sb.WriteString(p.Value)
	case *syntax.DblQuoted:
		for _, inner := range p.Parts {
			writeWordPart(sb, inner, unquote, true, static)
		}
	case *syntax.ParamExp:
		*static = false
		if p.Param != nil {
			sb.WriteString("$" + p.Param.Value)
		}
	case *syntax.CmdSubst:
		*static = false
		sb.WriteString("$()")
	default:
		*static = false
	}
}

// unescape removes backslash escapes from a literal. Inside double quotes
// a backslash only escapes $, `, ", \ and newline.
func unescape(s string, quoted bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			sb.WriteByte(s[i])
			continue
		}
		next := s[i+1]
		if quoted && !strings.ContainsRune("$`\"\\\n", rune(next)) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		if next != '\n' {
			sb.WriteByte(next)
		}
	}
	return sb.String()
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
