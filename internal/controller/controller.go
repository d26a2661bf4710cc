// Package controller drives one query from suggestion to execution
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sonemaro/tella/internal/prompt"
	"github.com/sonemaro/tella/internal/safety"
	"github.com/sonemaro/tella/internal/types"
)

// ConfirmPhrase must be typed verbatim to run a DANGEROUS command
const ConfirmPhrase = "execute"

// maxPhraseAttempts bounds re-prompts after a bare y/yes on a DANGEROUS command
const maxPhraseAttempts = 3

// State is a step of the interaction
type State int

const (
	StateIdle State = iota
	StateAwaitingUpstream
	StateAwaitingConfirmation
	StateExecuted
	StateDeclined
	StateCopied
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUpstream:
		return "awaiting_upstream"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateExecuted:
		return "executed"
	case StateDeclined:
		return "declined"
	case StateCopied:
		return "copied"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	return s >= StateExecuted
}

func (s State) outcome() types.Outcome {
	switch s {
	case StateExecuted:
		return types.OutcomeExecuted
	case StateDeclined:
		return types.OutcomeDeclined
	case StateCopied:
		return types.OutcomeCopied
	default:
		return types.OutcomeAborted
	}
}

// Suggester turns a prompt into a suggestion
type Suggester interface {
	Complete(ctx context.Context, p prompt.Payload) (*types.Suggestion, error)
}

// Classifier assesses a command
type Classifier interface {
	Assess(command string) safety.Assessment
}

// Executor runs a confirmed command
type Executor interface {
	Run(command string) (int, error)
}

// Prompter reads one line of user input; cancelling ctx abandons the read
type Prompter interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// View renders the interaction
type View interface {
	Suggestion(s *types.Suggestion, tier types.RiskLevel, reasons []string)
	Explain(s *types.Suggestion)
	Menu(hasAlternatives bool)
	DangerNotice(phrase string)
	PrintSuccess(message string)
	PrintError(message string)
	PrintWarning(message string)
	PrintInfo(message string)
	Waiting(message string) (stop func())
}

// Clipboard copies text for the user
type Clipboard interface {
	Copy(text string) error
}

// Recorder stores the outcome of an interaction
type Recorder interface {
	Add(entry *types.HistoryEntry) error
}

// Deps are the collaborators of a Controller. Clipboard, Recorder,
// SystemContext and Logger are optional.
type Deps struct {
	Suggester     Suggester
	Classifier    Classifier
	Executor      Executor
	Prompter      Prompter
	View          View
	Clipboard     Clipboard
	Recorder      Recorder
	SystemContext func() types.SystemContext
	Logger        *zap.Logger
}

// Options tune a single run
type Options struct {
	// AutoRunSafe skips confirmation for commands whose effective tier is SAFE
	AutoRunSafe bool
	// DryRun renders the suggestion and never executes
	DryRun bool
	// Copy sends the command to the clipboard instead of executing
	Copy bool

	Provider   string
	Model      string
	WorkingDir string
}

// Result is the terminal state of a run
type Result struct {
	State      State
	ExitCode   int
	Suggestion *types.Suggestion
	// Command is the command that was acted on; it differs from
	// Suggestion.Command when an alternative was picked.
	Command string
	Tier    types.RiskLevel
}

// Controller runs the query state machine
type Controller struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New creates a controller
func New(deps Deps, opts Options) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{deps: deps, opts: opts, logger: logger}
}

// run carries the per-query state
type run struct {
	c       *Controller
	query   string
	state   State
	started time.Time

	suggestion *types.Suggestion
	current    types.Suggestion
	assessment safety.Assessment
	tier       types.RiskLevel
}

// Run processes query to a terminal state. Declined runs return
// types.ErrUserDeclined; aborted runs return the cause.
func (c *Controller) Run(ctx context.Context, query string) (Result, error) {
	r := &run{c: c, query: query, state: StateIdle, started: time.Now()}

	var sysCtx types.SystemContext
	if c.deps.SystemContext != nil {
		sysCtx = c.deps.SystemContext()
	}

	payload, err := prompt.Build(query, sysCtx)
	if err != nil {
		return r.abort(err)
	}

	r.transition(StateAwaitingUpstream)
	stop := c.deps.View.Waiting("Thinking...")
	s, err := c.deps.Suggester.Complete(ctx, payload)
	stop()
	if err != nil {
		return r.abort(err)
	}

	r.suggestion = s
	r.current = *s
	r.transition(StateAwaitingConfirmation)
	r.classify()
	r.render()

	switch {
	case c.opts.DryRun:
		c.deps.View.PrintInfo("Dry run: command not executed")
		return r.decline()
	case c.opts.Copy:
		if err := r.copy(); err != nil {
			return r.abort(err)
		}
		return r.finish(StateCopied, 0, nil)
	case r.tier == types.RiskSafe && c.opts.AutoRunSafe:
		return r.execute()
	}

	return r.confirm(ctx)
}

func (r *run) transition(to State) {
	r.c.logger.Debug("state transition",
		zap.Stringer("from", r.state),
		zap.Stringer("to", to))
	r.state = to
}

func (r *run) classify() {
	r.assessment = r.c.deps.Classifier.Assess(r.current.Command)
	r.tier = safety.Effective(r.assessment.Level, r.suggestion.Risk)
	r.c.logger.Debug("classified",
		zap.String("command", r.current.Command),
		zap.Stringer("classifier", r.assessment.Level),
		zap.Stringer("model", r.suggestion.Risk),
		zap.Stringer("effective", r.tier))
}

func (r *run) render() {
	reasons := r.assessment.Reasons()
	if len(reasons) == 0 && r.tier > r.assessment.Level {
		reasons = []string{"Flagged by the model"}
	}
	r.c.deps.View.Suggestion(&r.current, r.tier, reasons)
}

// confirm loops in AwaitingConfirmation until a terminal choice is made
func (r *run) confirm(ctx context.Context) (Result, error) {
	view := r.c.deps.View
	for {
		if r.tier == types.RiskDangerous {
			return r.confirmTyped(ctx)
		}

		view.Menu(len(r.current.Alternatives) > 0)
		line, err := r.c.deps.Prompter.ReadLine(ctx, "  Choice: ")
		if err != nil {
			return r.inputFailed(err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return r.execute()
		case "", "n", "no":
			view.PrintInfo("Command canceled")
			return r.decline()
		case "e", "explain":
			view.Explain(&r.current)
		case "c", "copy":
			if err := r.copy(); err != nil {
				view.PrintError(err.Error())
				continue
			}
			return r.finish(StateCopied, 0, nil)
		case "a", "alt", "alternative":
			if err := r.pickAlternative(ctx); err != nil {
				if errors.Is(err, types.ErrUserAborted) || errors.Is(err, io.EOF) {
					return r.inputFailed(err)
				}
				view.PrintWarning(err.Error())
			}
		default:
			view.PrintWarning("Please enter y, n, e, c or a")
		}
	}
}

// confirmTyped requires ConfirmPhrase. A bare y/yes is rejected and
// re-prompted; any other answer declines.
func (r *run) confirmTyped(ctx context.Context) (Result, error) {
	view := r.c.deps.View
	view.DangerNotice(ConfirmPhrase)

	for attempt := 1; attempt <= maxPhraseAttempts; attempt++ {
		line, err := r.c.deps.Prompter.ReadLine(ctx, fmt.Sprintf("  Type %q to run: ", ConfirmPhrase))
		if err != nil {
			return r.inputFailed(err)
		}

		answer := strings.TrimSpace(line)
		switch strings.ToLower(answer) {
		case ConfirmPhrase:
			if answer == ConfirmPhrase {
				return r.execute()
			}
			view.PrintWarning(fmt.Sprintf("Type %q exactly, in lower case", ConfirmPhrase))
		case "y", "yes":
			view.PrintWarning(fmt.Sprintf("%q is not enough for a dangerous command; type %q", answer, ConfirmPhrase))
		default:
			view.PrintInfo("Command canceled")
			return r.decline()
		}
	}

	view.PrintInfo("Too many attempts, command canceled")
	return r.decline()
}

// pickAlternative swaps the current command for an alternative and
// re-classifies it. The previous command joins the alternatives.
func (r *run) pickAlternative(ctx context.Context) error {
	alts := r.current.Alternatives
	if len(alts) == 0 {
		return errors.New("no alternatives were suggested")
	}

	idx := 0
	if len(alts) > 1 {
		line, err := r.c.deps.Prompter.ReadLine(ctx, fmt.Sprintf("  Alternative [1-%d]: ", len(alts)))
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || n < 1 || n > len(alts) {
			return fmt.Errorf("invalid alternative %q", strings.TrimSpace(line))
		}
		idx = n - 1
	}

	rest := make([]string, 0, len(alts))
	rest = append(rest, r.current.Command)
	for i, a := range alts {
		if i != idx {
			rest = append(rest, a)
		}
	}
	r.current.Command = alts[idx]
	r.current.Alternatives = rest

	r.classify()
	r.render()
	return nil
}

func (r *run) copy() error {
	if r.c.deps.Clipboard == nil {
		return errors.New("clipboard not available")
	}
	if err := r.c.deps.Clipboard.Copy(r.current.Command); err != nil {
		return err
	}
	r.c.deps.View.PrintSuccess("Copied to clipboard")
	return nil
}

// inputFailed maps a failed confirmation read. An interrupt aborts; a
// closed input never counts as consent.
func (r *run) inputFailed(err error) (Result, error) {
	if errors.Is(err, types.ErrUserAborted) || errors.Is(err, context.Canceled) {
		return r.abort(types.ErrUserAborted)
	}
	r.c.logger.Debug("confirmation input closed", zap.Error(err))
	return r.decline()
}

func (r *run) execute() (Result, error) {
	r.transition(StateExecuted)
	start := time.Now()
	code, err := r.c.deps.Executor.Run(r.current.Command)
	elapsed := time.Since(start)

	if err != nil {
		var failed *types.ExecutionFailedError
		if errors.As(err, &failed) {
			r.c.deps.View.PrintError(fmt.Sprintf("Command exited with status %d", failed.ExitCode))
		} else {
			r.c.deps.View.PrintError(err.Error())
		}
	}
	return r.finishTimed(StateExecuted, code, err, elapsed)
}

func (r *run) decline() (Result, error) {
	return r.finish(StateDeclined, 0, types.ErrUserDeclined)
}

func (r *run) abort(err error) (Result, error) {
	return r.finish(StateAborted, types.ExitCode(err), err)
}

func (r *run) finish(state State, code int, err error) (Result, error) {
	return r.finishTimed(state, code, err, time.Since(r.started))
}

func (r *run) finishTimed(state State, code int, err error, elapsed time.Duration) (Result, error) {
	if r.state != state {
		r.transition(state)
	}
	r.record(code, err, elapsed)

	return Result{
		State:      state,
		ExitCode:   code,
		Suggestion: r.suggestion,
		Command:    r.current.Command,
		Tier:       r.tier,
	}, err
}

func (r *run) record(code int, err error, elapsed time.Duration) {
	if r.c.deps.Recorder == nil {
		return
	}

	entry := &types.HistoryEntry{
		Query:         r.query,
		Command:       r.current.Command,
		EffectiveRisk: r.tier,
		Outcome:       r.state.outcome(),
		ExitCode:      code,
		DurationMs:    elapsed.Milliseconds(),
		WorkingDir:    r.c.opts.WorkingDir,
		Provider:      r.c.opts.Provider,
		Model:         r.c.opts.Model,
	}
	if r.suggestion != nil {
		entry.ModelRisk = r.suggestion.Risk
	}
	if err != nil && !errors.Is(err, types.ErrUserDeclined) {
		entry.Error = err.Error()
	}

	if err := r.c.deps.Recorder.Add(entry); err != nil {
		r.c.logger.Warn("failed to record history", zap.Error(err))
	}
}
