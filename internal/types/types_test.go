// Package types provides shared type definitions for tella
package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestRiskLevel_String(t *testing.T) {
	tests := []struct {
		name     string
		level    RiskLevel
		expected string
	}{
		{"Safe", RiskSafe, "SAFE"},
		{"Caution", RiskCaution, "CAUTION"},
		{"Dangerous", RiskDangerous, "DANGEROUS"},
		{"Unknown", RiskLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("RiskLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRiskLevel_Color(t *testing.T) {
	tests := []struct {
		name     string
		level    RiskLevel
		expected string
	}{
		{"Safe", RiskSafe, "green"},
		{"Caution", RiskCaution, "yellow"},
		{"Dangerous", RiskDangerous, "red"},
		{"Unknown", RiskLevel(99), "white"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.Color(); got != tt.expected {
				t.Errorf("RiskLevel.Color() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRiskLevelOrdering(t *testing.T) {
	if RiskSafe >= RiskCaution {
		t.Error("RiskSafe should be less than RiskCaution")
	}
	if RiskCaution >= RiskDangerous {
		t.Error("RiskCaution should be less than RiskDangerous")
	}
}

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   RiskLevel
		wantOK bool
	}{
		{"safe", RiskSafe, true},
		{"SAFE", RiskSafe, true},
		{" caution ", RiskCaution, true},
		{"warning", RiskCaution, true},
		{"dangerous", RiskDangerous, true},
		{"critical", RiskDangerous, true},
		{"", RiskCaution, false},
		{"spicy", RiskCaution, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRiskLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseRiskLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMaxRisk(t *testing.T) {
	all := []RiskLevel{RiskSafe, RiskCaution, RiskDangerous}
	for _, a := range all {
		for _, b := range all {
			got := MaxRisk(a, b)
			want := a
			if b > a {
				want = b
			}
			if got != want {
				t.Errorf("MaxRisk(%v, %v) = %v, want %v", a, b, got, want)
			}
		}
	}

	if got := MaxRisk(); got != RiskSafe {
		t.Errorf("MaxRisk() = %v, want SAFE", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"declined", ErrUserDeclined, 0},
		{"aborted", fmt.Errorf("waiting: %w", ErrUserAborted), 130},
		{"empty query", ErrEmptyQuery, 2},
		{"timeout", ErrUpstreamTimeout, 1},
		{"rejected", &UpstreamRejectedError{Status: 400}, 1},
		{"execution", fmt.Errorf("run: %w", &ExecutionFailedError{ExitCode: 3}), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := &UpstreamRejectedError{Status: 429, Body: "slow down"}
	if err.Error() != "model endpoint rejected request (HTTP 429): slow down" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	var rejected *UpstreamRejectedError
	if !errors.As(fmt.Errorf("wrap: %w", err), &rejected) || rejected.Status != 429 {
		t.Error("expected errors.As to find UpstreamRejectedError")
	}

	refused := &RefusedError{Reason: "not a shell task"}
	if refused.Error() != "model did not suggest a command: not a shell task" {
		t.Errorf("unexpected message: %s", refused.Error())
	}
}
