package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sonemaro/tella/internal/types"
)

// refusalCommand is the sentinel some models put in "command" instead of
// filling "refusal".
const refusalCommand = "ERROR"

type wireSuggestion struct {
	Command      string   `json:"command"`
	Summary      string   `json:"summary"`
	Description  string   `json:"description"`
	Explanation  string   `json:"explanation"`
	Risk         string   `json:"risk"`
	RiskLevel    string   `json:"risk_level"`
	Severity     string   `json:"severity"`
	RiskNote     string   `json:"risk_note"`
	Alternatives []string `json:"alternatives"`
	Warnings     []string `json:"warnings"`
	Refusal      string   `json:"refusal"`
}

// ParseSuggestion decodes a model reply. Missing command, explanation or
// risk fields fail with types.ErrMalformedResponse; nothing is defaulted.
func ParseSuggestion(content string) (*types.Suggestion, error) {
	var w wireSuggestion
	if err := decodeJSON(content, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}

	command := strings.TrimSpace(w.Command)
	if w.Refusal != "" || command == refusalCommand {
		reason := strings.TrimSpace(w.Refusal)
		if reason == "" {
			reason = strings.TrimSpace(firstNonEmpty(w.Explanation, w.Summary, w.Description))
		}
		return nil, &types.RefusedError{Reason: reason}
	}

	if command == "" {
		return nil, fmt.Errorf("%w: missing command", types.ErrMalformedResponse)
	}
	if strings.TrimSpace(w.Explanation) == "" {
		return nil, fmt.Errorf("%w: missing explanation", types.ErrMalformedResponse)
	}

	riskName := firstNonEmpty(w.Risk, w.RiskLevel, w.Severity)
	if riskName == "" {
		return nil, fmt.Errorf("%w: missing risk", types.ErrMalformedResponse)
	}
	risk, ok := types.ParseRiskLevel(riskName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown risk %q", types.ErrMalformedResponse, riskName)
	}

	return &types.Suggestion{
		Command:      command,
		Summary:      strings.TrimSpace(firstNonEmpty(w.Summary, w.Description)),
		Explanation:  strings.TrimSpace(w.Explanation),
		Risk:         risk,
		RiskNote:     strings.TrimSpace(w.RiskNote),
		Alternatives: cleanAlternatives(w.Alternatives, command),
		Warnings:     cleanList(w.Warnings),
	}, nil
}

// decodeJSON accepts a bare object, one wrapped in a code fence, or one
// surrounded by prose.
func decodeJSON(content string, v any) error {
	content = stripCodeFence(strings.TrimSpace(content))
	if content == "" {
		return fmt.Errorf("empty reply")
	}

	err := json.Unmarshal([]byte(content), v)
	if err == nil {
		return nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err2 := json.Unmarshal([]byte(content[start:end+1]), v); err2 == nil {
			return nil
		}
	}
	return err
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		// Drop the language tag line (```json).
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func cleanAlternatives(alts []string, primary string) []string {
	var out []string
	seen := map[string]bool{primary: true}
	for _, a := range alts {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func cleanList(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
