package safety

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sonemaro/tella/internal/types"
)

// CustomRule is a user-defined pattern loaded from the custom rules file
type CustomRule struct {
	Pattern string `yaml:"pattern"`
	Level   string `yaml:"level"`
	Message string `yaml:"message"`
}

// rulesFile is the layout of the custom rules file
type rulesFile struct {
	Rules []CustomRule `yaml:"rules"`
}

// Match is a rule hit reported by Assess
type Match struct {
	Rule        string
	Category    string
	Level       types.RiskLevel
	Description string
}

// Assessment is the full classification of a command
type Assessment struct {
	Level       types.RiskLevel
	Matches     []Match
	AllowListed bool
	ParseError  error
}

// Reasons returns the descriptions of matches at the assessed level.
func (a Assessment) Reasons() []string {
	var out []string
	for _, m := range a.Matches {
		if m.Level == a.Level {
			out = append(out, m.Description)
		}
	}
	return out
}

// Classifier assigns risk tiers to shell commands. It is safe for
// concurrent use once built.
type Classifier struct {
	rules   []Rule
	blocked []string
}

// NewClassifier builds a classifier from the built-in rules, the user's
// blocked commands and any custom rules.
func NewClassifier(blocked []string, custom []CustomRule) (*Classifier, error) {
	c := &Classifier{rules: append([]Rule(nil), rules...)}

	for _, b := range blocked {
		b = strings.Join(strings.Fields(b), " ")
		if b != "" {
			c.blocked = append(c.blocked, b)
		}
	}

	for i, cr := range custom {
		rule, err := compileCustomRule(i, cr)
		if err != nil {
			return nil, err
		}
		c.rules = append(c.rules, rule)
	}

	return c, nil
}

func compileCustomRule(i int, cr CustomRule) (Rule, error) {
	if strings.TrimSpace(cr.Pattern) == "" {
		return Rule{}, fmt.Errorf("custom rule %d: pattern is required", i+1)
	}
	re, err := regexp.Compile(cr.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("custom rule %d: %w", i+1, err)
	}
	level, ok := types.ParseRiskLevel(cr.Level)
	if !ok {
		return Rule{}, fmt.Errorf("custom rule %d: unknown level %q", i+1, cr.Level)
	}
	// custom rules may only raise the tier
	if level == types.RiskSafe {
		return Rule{}, fmt.Errorf("custom rule %d: level must be caution or dangerous", i+1)
	}

	desc := cr.Message
	if desc == "" {
		desc = "Matches custom rule " + cr.Pattern
	}
	return Rule{
		Name:        fmt.Sprintf("custom-%d", i+1),
		Category:    CategoryUser,
		Level:       level,
		Description: desc,
		match:       func(t *tokens) bool { return re.MatchString(t.raw) },
	}, nil
}

// LoadRules reads custom rules from a YAML file. A missing file yields no
// rules.
func LoadRules(path string) ([]CustomRule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return f.Rules, nil
}

// Classify returns the risk tier of command.
func (c *Classifier) Classify(command string) types.RiskLevel {
	return c.Assess(command).Level
}

// Assess classifies command and reports every rule that matched. It never
// fails: unparseable input is judged on its raw text and is never SAFE.
func (c *Classifier) Assess(command string) Assessment {
	t := tokenize(command)
	a := Assessment{ParseError: t.parseErr}

	for _, r := range c.rules {
		if r.match(t) {
			a.Matches = append(a.Matches, Match{
				Rule:        r.Name,
				Category:    r.Category,
				Level:       r.Level,
				Description: r.Description,
			})
		}
	}

	if name, ok := c.blockedMatch(t); ok {
		a.Matches = append(a.Matches, Match{
			Rule:        "blocked",
			Category:    CategoryUser,
			Level:       types.RiskDangerous,
			Description: fmt.Sprintf("Blocked command: %s", name),
		})
	}

	a.AllowListed = t.parseErr == nil && allowListed(t)

	levels := make([]types.RiskLevel, 0, len(a.Matches)+1)
	for _, m := range a.Matches {
		levels = append(levels, m.Level)
	}
	if a.AllowListed && len(a.Matches) == 0 {
		levels = append(levels, types.RiskSafe)
	} else {
		levels = append(levels, types.RiskCaution)
	}
	a.Level = types.MaxRisk(levels...)

	return a
}

// blockedMatch reports the first blocked command present. Single words
// match command names; longer entries match the normalized raw text.
func (c *Classifier) blockedMatch(t *tokens) (string, bool) {
	if len(c.blocked) == 0 {
		return "", false
	}
	raw := strings.Join(strings.Fields(t.raw), " ")
	for _, b := range c.blocked {
		if strings.Contains(b, " ") {
			if strings.Contains(raw, b) {
				return b, true
			}
			continue
		}
		for _, call := range t.calls {
			if call.Is(b) || call.WrappedBy(b) {
				return b, true
			}
		}
	}
	return "", false
}

// Effective combines the classifier tier with the model's own tier.
func Effective(classifier, model types.RiskLevel) types.RiskLevel {
	return types.MaxRisk(classifier, model)
}
