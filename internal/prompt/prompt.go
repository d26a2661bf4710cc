// Package prompt turns a user query and system context into the messages
// sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sonemaro/tella/internal/types"
)

// Payload is the pair of messages for one completion request
type Payload struct {
	System string
	User   string
}

// systemPrompt is filled with the target shell dialect.
const systemPrompt = `You are tella, a %[1]s command suggestion tool. You convert a natural language request into exactly one %[1]s command for the system described in the context.

RULES:
1. Return exactly ONE primary command in "command". Put other reasonable ways to do the same thing in "alternatives".
2. Classify the risk of the primary command yourself in "risk" as one of: safe, caution, dangerous.
   - safe: read-only, no side effects
   - caution: modifies files, processes or configuration in a recoverable way
   - dangerous: deletes data, overwrites devices, escalates privileges, sends local data over the network, or cannot be undone
3. NEVER suggest a command with destructive or irreversible side effects without marking it "dangerous" and saying what it destroys in "risk_note".
4. Prefer the least destructive command that does the job (e.g. move to trash, dry-run flags, interactive prompts).
5. Use the current directory, shell and OS from the context. Do not assume tools that are not common on that OS.
6. If the request is not asking for a command (small talk, general questions, requests for harmful activity), leave "command" empty and explain why in "refusal".

Respond with ONLY this JSON object, no markdown:
{
  "command": "the exact command to run",
  "summary": "one line describing what the command does",
  "explanation": "how the command works, flag by flag",
  "risk": "safe|caution|dangerous",
  "risk_note": "why this risk level",
  "alternatives": ["other commands that achieve the same result"],
  "warnings": ["anything the user should check before running it"],
  "refusal": ""
}`

// Build returns the request payload for query. It fails with
// types.ErrEmptyQuery when query has no non-whitespace content.
func Build(query string, ctx types.SystemContext) (Payload, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Payload{}, types.ErrEmptyQuery
	}

	return Payload{
		System: fmt.Sprintf(systemPrompt, Dialect(ctx)),
		User:   Context(ctx) + "\nREQUEST:\n" + q,
	}, nil
}

// Dialect names the command language the model should target
func Dialect(ctx types.SystemContext) string {
	if strings.EqualFold(ctx.OS, "windows") {
		return "Windows PowerShell"
	}
	switch shell := strings.ToLower(ctx.Shell); shell {
	case "bash", "zsh", "fish", "sh":
		return shell
	case "powershell", "pwsh":
		return "PowerShell"
	default:
		return "POSIX shell"
	}
}

// Context formats the system context block of the user message
func Context(ctx types.SystemContext) string {
	var sb strings.Builder
	sb.WriteString("SYSTEM CONTEXT:\n")
	writeField(&sb, "OS", ctx.OS)
	writeField(&sb, "Shell", ctx.Shell)
	writeField(&sb, "Current Directory", ctx.CurrentDir)
	writeField(&sb, "Home Directory", ctx.HomeDir)
	writeField(&sb, "User", ctx.Username)
	writeField(&sb, "Git Branch", ctx.GitBranch)
	if len(ctx.InstalledPkgMgrs) > 0 {
		writeField(&sb, "Package Managers", strings.Join(ctx.InstalledPkgMgrs, ", "))
	}
	return sb.String()
}

func writeField(sb *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	sb.WriteString("- ")
	sb.WriteString(name)
	sb.WriteString(": ")
	sb.WriteString(value)
	sb.WriteString("\n")
}
