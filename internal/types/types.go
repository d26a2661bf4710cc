// Package types provides shared type definitions for tella
package types

import (
	"strings"
	"time"
)

// RiskLevel represents the danger level of a command
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskCaution
	RiskDangerous
)

func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "SAFE"
	case RiskCaution:
		return "CAUTION"
	case RiskDangerous:
		return "DANGEROUS"
	default:
		return "UNKNOWN"
	}
}

func (r RiskLevel) Color() string {
	switch r {
	case RiskSafe:
		return "green"
	case RiskCaution:
		return "yellow"
	case RiskDangerous:
		return "red"
	default:
		return "white"
	}
}

func (r RiskLevel) Emoji() string {
	switch r {
	case RiskSafe:
		return "🟢"
	case RiskCaution:
		return "🟡"
	case RiskDangerous:
		return "🔴"
	default:
		return "⚪"
	}
}

// ParseRiskLevel maps a tier name to a RiskLevel. "warning" and "critical"
// are accepted because models use them interchangeably with caution and
// dangerous. Unknown names report ok=false.
func ParseRiskLevel(s string) (level RiskLevel, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "safe", "low":
		return RiskSafe, true
	case "caution", "warning", "medium":
		return RiskCaution, true
	case "dangerous", "danger", "critical", "high":
		return RiskDangerous, true
	default:
		return RiskCaution, false
	}
}

// MaxRisk returns the stricter of the given levels.
func MaxRisk(levels ...RiskLevel) RiskLevel {
	max := RiskSafe
	for _, l := range levels {
		if l > max {
			max = l
		}
	}
	return max
}

// SystemContext contains information about the current system state
type SystemContext struct {
	OS               string   `json:"os"`
	Shell            string   `json:"shell"`
	CurrentDir       string   `json:"current_dir"`
	HomeDir          string   `json:"home_dir,omitempty"`
	Username         string   `json:"username,omitempty"`
	GitBranch        string   `json:"git_branch,omitempty"`
	InstalledPkgMgrs []string `json:"installed_pkg_mgrs,omitempty"`
}

// Suggestion is a command proposed by the model for a query
type Suggestion struct {
	Command      string    `json:"command"`
	Summary      string    `json:"summary,omitempty"`
	Explanation  string    `json:"explanation"`
	Risk         RiskLevel `json:"risk"`
	RiskNote     string    `json:"risk_note,omitempty"`
	Alternatives []string  `json:"alternatives,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// Outcome is the terminal state an invocation ended in
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeDeclined Outcome = "declined"
	OutcomeCopied   Outcome = "copied"
	OutcomeAborted  Outcome = "aborted"
)

// HistoryEntry represents a suggestion in the audit history
type HistoryEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Query         string    `json:"query"`
	Command       string    `json:"command"`
	ModelRisk     RiskLevel `json:"model_risk"`
	EffectiveRisk RiskLevel `json:"effective_risk"`
	Outcome       Outcome   `json:"outcome"`
	ExitCode      int       `json:"exit_code"`
	DurationMs    int64     `json:"duration_ms"`
	WorkingDir    string    `json:"working_dir"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Error         string    `json:"error,omitempty"`
}
