package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sonemaro/tella/internal/prompt"
	"github.com/sonemaro/tella/internal/safety"
	"github.com/sonemaro/tella/internal/shell"
	"github.com/sonemaro/tella/internal/types"
	"github.com/sonemaro/tella/internal/ui"
)

type fakeSuggester struct {
	suggestion *types.Suggestion
	err        error
	calls      int
	payload    prompt.Payload
}

func (f *fakeSuggester) Complete(ctx context.Context, p prompt.Payload) (*types.Suggestion, error) {
	f.calls++
	f.payload = p
	if f.err != nil {
		return nil, f.err
	}
	s := *f.suggestion
	return &s, nil
}

type fakeExecutor struct {
	code     int
	err      error
	commands []string
}

func (f *fakeExecutor) Run(command string) (int, error) {
	f.commands = append(f.commands, command)
	return f.code, f.err
}

// scriptedPrompter answers from lines and then reports io.EOF. With
// block set it waits for ctx instead.
type scriptedPrompter struct {
	lines   []string
	prompts []string
	block   bool
}

func (p *scriptedPrompter) ReadLine(ctx context.Context, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.lines) == 0 {
		if p.block {
			<-ctx.Done()
			return "", types.ErrUserAborted
		}
		return "", io.EOF
	}
	line := p.lines[0]
	p.lines = p.lines[1:]
	return line, nil
}

type fakeView struct {
	tiers    []types.RiskLevel
	commands []string
	explains int
	menus    int
	dangers  int
	warnings []string
	errors   []string
}

func (v *fakeView) Suggestion(s *types.Suggestion, tier types.RiskLevel, reasons []string) {
	v.tiers = append(v.tiers, tier)
	v.commands = append(v.commands, s.Command)
}
func (v *fakeView) Explain(*types.Suggestion) { v.explains++ }
func (v *fakeView) Menu(bool) { v.menus++ }
func (v *fakeView) DangerNotice(string) { v.dangers++ }
func (v *fakeView) PrintSuccess(string) {}
func (v *fakeView) PrintError(m string) { v.errors = append(v.errors, m) }
func (v *fakeView) PrintWarning(m string) { v.warnings = append(v.warnings, m) }
func (v *fakeView) PrintInfo(string) {}
func (v *fakeView) Waiting(string) func() { return func() {} }

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) Copy(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

type fakeRecorder struct {
	entries []*types.HistoryEntry
	err     error
}

func (r *fakeRecorder) Add(e *types.HistoryEntry) error {
	r.entries = append(r.entries, e)
	return r.err
}

type harness struct {
	suggester *fakeSuggester
	executor  *fakeExecutor
	prompter  *scriptedPrompter
	view      *fakeView
	clipboard *fakeClipboard
	recorder  *fakeRecorder
	ctrl      *Controller
}

func newHarness(t *testing.T, s *types.Suggestion, lines []string, opts Options) *harness {
	t.Helper()
	classifier, err := safety.NewClassifier(nil, nil)
	if err != nil {
		t.Fatalf("NewClassifier() error: %v", err)
	}

	h := &harness{
		suggester: &fakeSuggester{suggestion: s},
		executor:  &fakeExecutor{},
		prompter:  &scriptedPrompter{lines: lines},
		view:      &fakeView{},
		clipboard: &fakeClipboard{},
		recorder:  &fakeRecorder{},
	}
	h.ctrl = New(Deps{
		Suggester:  h.suggester,
		Classifier: classifier,
		Executor:   h.executor,
		Prompter:   h.prompter,
		View:       h.view,
		Clipboard:  h.clipboard,
		Recorder:   h.recorder,
		SystemContext: func() types.SystemContext {
			return types.SystemContext{OS: "linux", Shell: "bash", CurrentDir: "/home/dev"}
		},
	}, opts)
	return h
}

func (h *harness) lastEntry(t *testing.T) *types.HistoryEntry {
	t.Helper()
	if len(h.recorder.entries) != 1 {
		t.Fatalf("Expected exactly one history entry, got %d", len(h.recorder.entries))
	}
	return h.recorder.entries[0]
}

var listFiles = &types.Suggestion{
	Command:     "ls -la",
	Explanation: "Lists all files with details",
	Risk:        types.RiskSafe,
}

func TestRun_SafeAutoRun(t *testing.T) {
	h := newHarness(t, listFiles, nil, Options{AutoRunSafe: true, Provider: "cerebras", Model: "llama3.3-70b"})

	res, err := h.ctrl.Run(context.Background(), "list files")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.State != StateExecuted || res.ExitCode != 0 || res.Tier != types.RiskSafe {
		t.Errorf("Unexpected result %+v", res)
	}
	if diff := cmp.Diff([]string{"ls -la"}, h.executor.commands); diff != "" {
		t.Errorf("executed commands mismatch (-want +got):\n%s", diff)
	}
	if len(h.prompter.prompts) != 0 {
		t.Errorf("Expected no confirmation prompt, got %v", h.prompter.prompts)
	}
	if !strings.Contains(h.suggester.payload.User, "list files") {
		t.Errorf("Expected query in prompt, got %q", h.suggester.payload.User)
	}

	e := h.lastEntry(t)
	if e.Outcome != types.OutcomeExecuted || e.Query != "list files" || e.Command != "ls -la" || e.Provider != "cerebras" {
		t.Errorf("Unexpected history entry %+v", e)
	}
}

func TestRun_SafeWithoutAutoRunAsks(t *testing.T) {
	h := newHarness(t, listFiles, []string{"y"}, Options{})

	res, err := h.ctrl.Run(context.Background(), "list files")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.State != StateExecuted {
		t.Errorf("Expected executed, got %s", res.State)
	}
	if h.view.menus != 1 {
		t.Errorf("Expected menu once, got %d", h.view.menus)
	}
}

func TestRun_AutoRunNeverAppliesAboveSafe(t *testing.T) {
	s := &types.Suggestion{Command: "ls -la", Risk: types.RiskCaution}
	h := newHarness(t, s, nil, Options{AutoRunSafe: true})

	res, err := h.ctrl.Run(context.Background(), "list files")
	if !errors.Is(err, types.ErrUserDeclined) {
		t.Fatalf("Expected ErrUserDeclined, got %v", err)
	}
	if res.State != StateDeclined || res.Tier != types.RiskCaution {
		t.Errorf("Unexpected result %+v", res)
	}
	if len(h.executor.commands) != 0 {
		t.Error("Model-flagged command ran without confirmation")
	}
}

func TestRun_DangerousRejectsYes(t *testing.T) {
	s := &types.Suggestion{Command: "rm -rf /", Risk: types.RiskCaution}
	h := newHarness(t, s, []string{"y", "yes", "y"}, Options{AutoRunSafe: true})

	res, err := h.ctrl.Run(context.Background(), "delete everything")
	if !errors.Is(err, types.ErrUserDeclined) {
		t.Fatalf("Expected ErrUserDeclined, got %v", err)
	}
	if res.State != StateDeclined || res.Tier != types.RiskDangerous || res.ExitCode != 0 {
		t.Errorf("Unexpected result %+v", res)
	}
	if len(h.executor.commands) != 0 {
		t.Fatalf("Dangerous command executed: %v", h.executor.commands)
	}
	if len(h.prompter.prompts) != maxPhraseAttempts {
		t.Errorf("Expected %d prompts, got %d", maxPhraseAttempts, len(h.prompter.prompts))
	}
	if len(h.view.warnings) != maxPhraseAttempts {
		t.Errorf("Expected a warning per rejected yes, got %v", h.view.warnings)
	}
	if h.view.dangers != 1 || h.view.menus != 0 {
		t.Errorf("Expected the danger notice instead of the menu, got dangers=%d menus=%d", h.view.dangers, h.view.menus)
	}
	if e := h.lastEntry(t); e.Outcome != types.OutcomeDeclined || e.EffectiveRisk != types.RiskDangerous || e.ModelRisk != types.RiskCaution {
		t.Errorf("Unexpected history entry %+v", e)
	}
}

func TestRun_DangerousRequiresPhrase(t *testing.T) {
	s := &types.Suggestion{Command: "rm -rf /", Risk: types.RiskDangerous}
	h := newHarness(t, s, []string{"y", "EXECUTE", ConfirmPhrase}, Options{})

	res, err := h.ctrl.Run(context.Background(), "delete everything")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.State != StateExecuted {
		t.Fatalf("Expected executed after typing the phrase, got %s", res.State)
	}
	if len(h.executor.commands) != 1 {
		t.Errorf("Expected one execution, got %v", h.executor.commands)
	}
}

func TestRun_DangerousOtherAnswerDeclines(t *testing.T) {
	for _, answer := range []string{"", "n", "no thanks"} {
		t.Run(fmt.Sprintf("%q", answer), func(t *testing.T) {
			s := &types.Suggestion{Command: "mkfs.ext4 /dev/sda1", Risk: types.RiskDangerous}
			h := newHarness(t, s, []string{answer, ConfirmPhrase}, Options{})

			res, _ := h.ctrl.Run(context.Background(), "format disk")
			if res.State != StateDeclined {
				t.Errorf("Expected declined, got %s", res.State)
			}
			if len(h.executor.commands) != 0 {
				t.Error("Command executed")
			}
		})
	}
}

func TestRun_MenuChoices(t *testing.T) {
	caution := &types.Suggestion{Command: "rm build.log", Risk: types.RiskCaution}

	tests := []struct {
		name     string
		lines    []string
		want     State
		executed bool
		explains int
	}{
		{"yes", []string{"y"}, StateExecuted, true, 0},
		{"yes word", []string{"YES"}, StateExecuted, true, 0},
		{"no", []string{"n"}, StateDeclined, false, 0},
		{"empty", []string{""}, StateDeclined, false, 0},
		{"eof", nil, StateDeclined, false, 0},
		{"explain then run", []string{"e", "y"}, StateExecuted, true, 1},
		{"invalid then no", []string{"x", "n"}, StateDeclined, false, 0},
		{"copy", []string{"c"}, StateCopied, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, caution, tt.lines, Options{})

			res, _ := h.ctrl.Run(context.Background(), "remove the build log")
			if res.State != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, res.State)
			}
			if got := len(h.executor.commands) > 0; got != tt.executed {
				t.Errorf("executed = %v, want %v", got, tt.executed)
			}
			if h.view.explains != tt.explains {
				t.Errorf("explains = %d, want %d", h.view.explains, tt.explains)
			}
			if e := h.lastEntry(t); e.Outcome != tt.want.outcome() {
				t.Errorf("history outcome = %s, want %s", e.Outcome, tt.want.outcome())
			}
		})
	}
}

func TestRun_CopyFromMenu(t *testing.T) {
	s := &types.Suggestion{Command: "rm build.log", Risk: types.RiskCaution}
	h := newHarness(t, s, []string{"c"}, Options{})

	if _, err := h.ctrl.Run(context.Background(), "remove the build log"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if h.clipboard.text != "rm build.log" {
		t.Errorf("Expected command on clipboard, got %q", h.clipboard.text)
	}
}

func TestRun_CopyFailureReturnsToMenu(t *testing.T) {
	s := &types.Suggestion{Command: "rm build.log", Risk: types.RiskCaution}
	h := newHarness(t, s, []string{"c", "n"}, Options{})
	h.clipboard.err = errors.New("no clipboard utility")

	res, _ := h.ctrl.Run(context.Background(), "remove the build log")
	if res.State != StateDeclined {
		t.Errorf("Expected declined, got %s", res.State)
	}
	if len(h.view.errors) != 1 {
		t.Errorf("Expected the copy error to be shown, got %v", h.view.errors)
	}
}

func TestRun_AlternativeIsReclassified(t *testing.T) {
	s := &types.Suggestion{
		Command:      "ls -la",
		Risk:         types.RiskSafe,
		Alternatives: []string{"rm -rf /"},
	}
	h := newHarness(t, s, []string{"a", "y", ConfirmPhrase}, Options{})

	res, err := h.ctrl.Run(context.Background(), "clean up")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Command != "rm -rf /" || res.Tier != types.RiskDangerous {
		t.Errorf("Unexpected result %+v", res)
	}
	if res.Suggestion.Command != "ls -la" {
		t.Errorf("Original suggestion must stay intact, got %q", res.Suggestion.Command)
	}
	if diff := cmp.Diff([]types.RiskLevel{types.RiskSafe, types.RiskDangerous}, h.view.tiers); diff != "" {
		t.Errorf("rendered tiers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"rm -rf /"}, h.executor.commands); diff != "" {
		t.Errorf("executed commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_AlternativeSelection(t *testing.T) {
	s := &types.Suggestion{
		Command:      "rm build.log",
		Risk:         types.RiskCaution,
		Alternatives: []string{"trash build.log", "mv build.log /tmp"},
	}
	h := newHarness(t, s, []string{"a", "9", "a", "2", "y"}, Options{})

	res, err := h.ctrl.Run(context.Background(), "remove the build log")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Command != "mv build.log /tmp" {
		t.Errorf("Expected the second alternative, got %q", res.Command)
	}
	if len(h.view.warnings) != 1 {
		t.Errorf("Expected a warning for the invalid pick, got %v", h.view.warnings)
	}
}

func TestRun_NoAlternatives(t *testing.T) {
	s := &types.Suggestion{Command: "rm build.log", Risk: types.RiskCaution}
	h := newHarness(t, s, []string{"a", "n"}, Options{})

	res, _ := h.ctrl.Run(context.Background(), "remove the build log")
	if res.State != StateDeclined || len(h.view.warnings) != 1 {
		t.Errorf("Expected a warning and decline, got %s %v", res.State, h.view.warnings)
	}
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t, listFiles, []string{"y"}, Options{DryRun: true, AutoRunSafe: true})

	res, err := h.ctrl.Run(context.Background(), "list files")
	if !errors.Is(err, types.ErrUserDeclined) {
		t.Fatalf("Expected ErrUserDeclined, got %v", err)
	}
	if res.State != StateDeclined || len(h.executor.commands) != 0 || len(h.prompter.prompts) != 0 {
		t.Errorf("Dry run must not prompt or execute: %+v", res)
	}
	if len(h.view.commands) != 1 {
		t.Error("Dry run must still render the suggestion")
	}
}

func TestRun_CopyOption(t *testing.T) {
	s := &types.Suggestion{Command: "rm -rf /", Risk: types.RiskDangerous}
	h := newHarness(t, s, nil, Options{Copy: true})

	res, err := h.ctrl.Run(context.Background(), "delete everything")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.State != StateCopied || h.clipboard.text != "rm -rf /" || len(h.executor.commands) != 0 {
		t.Errorf("Unexpected copy result %+v", res)
	}
}

func TestRun_CopyOptionFailure(t *testing.T) {
	h := newHarness(t, listFiles, nil, Options{Copy: true})
	h.clipboard.err = errors.New("clipboard unavailable")

	res, err := h.ctrl.Run(context.Background(), "list files")
	if err == nil || res.State != StateAborted || res.ExitCode != 1 {
		t.Errorf("Expected aborted with exit 1, got %+v, %v", res, err)
	}
}

func TestRun_EmptyQuery(t *testing.T) {
	h := newHarness(t, listFiles, nil, Options{})

	res, err := h.ctrl.Run(context.Background(), "   ")
	if !errors.Is(err, types.ErrEmptyQuery) {
		t.Fatalf("Expected ErrEmptyQuery, got %v", err)
	}
	if res.State != StateAborted || res.ExitCode != 2 {
		t.Errorf("Unexpected result %+v", res)
	}
	if h.suggester.calls != 0 {
		t.Error("Suggester called for an empty query")
	}
}

func TestRun_UpstreamFailure(t *testing.T) {
	h := newHarness(t, listFiles, nil, Options{})
	h.suggester.err = types.ErrUpstreamTimeout

	res, err := h.ctrl.Run(context.Background(), "list files")
	if !errors.Is(err, types.ErrUpstreamTimeout) {
		t.Fatalf("Expected ErrUpstreamTimeout, got %v", err)
	}
	if res.State != StateAborted || res.ExitCode != 1 || res.Suggestion != nil {
		t.Errorf("Unexpected result %+v", res)
	}
	e := h.lastEntry(t)
	if e.Outcome != types.OutcomeAborted || e.Error == "" {
		t.Errorf("Expected aborted entry with error, got %+v", e)
	}
}

func TestRun_InterruptDuringConfirmation(t *testing.T) {
	s := &types.Suggestion{Command: "rm build.log", Risk: types.RiskCaution}
	h := newHarness(t, s, nil, Options{})
	h.prompter.block = true

	ctx, cancel := context.WithCancel(context.Background())
	h.view = &fakeView{}
	h.ctrl.deps.View = &cancelOnMenu{fakeView: h.view, cancel: cancel}

	res, err := h.ctrl.Run(ctx, "remove the build log")
	if !errors.Is(err, types.ErrUserAborted) {
		t.Fatalf("Expected ErrUserAborted, got %v", err)
	}
	if res.State != StateAborted || res.ExitCode != 130 {
		t.Errorf("Unexpected result %+v", res)
	}
	if len(h.executor.commands) != 0 {
		t.Error("Command executed after interrupt")
	}
}

// cancelOnMenu simulates Ctrl-C while the menu waits for input
type cancelOnMenu struct {
	*fakeView
	cancel context.CancelFunc
}

func (c *cancelOnMenu) Menu(has bool) {
	c.fakeView.Menu(has)
	c.cancel()
}

func TestRun_ExecutionFailure(t *testing.T) {
	h := newHarness(t, listFiles, nil, Options{AutoRunSafe: true})
	h.executor.code = 3
	h.executor.err = &types.ExecutionFailedError{ExitCode: 3}

	res, err := h.ctrl.Run(context.Background(), "list files")
	var execErr *types.ExecutionFailedError
	if !errors.As(err, &execErr) {
		t.Fatalf("Expected ExecutionFailedError, got %v", err)
	}
	if res.State != StateExecuted || res.ExitCode != 3 {
		t.Errorf("Unexpected result %+v", res)
	}
	if e := h.lastEntry(t); e.ExitCode != 3 || e.Outcome != types.OutcomeExecuted {
		t.Errorf("Unexpected history entry %+v", e)
	}
}

func TestRun_RecorderFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, listFiles, nil, Options{AutoRunSafe: true})
	h.recorder.err = errors.New("disk full")

	res, err := h.ctrl.Run(context.Background(), "list files")
	if err != nil || res.State != StateExecuted {
		t.Errorf("Expected success despite history failure, got %+v, %v", res, err)
	}
}

func TestRun_OptionalDeps(t *testing.T) {
	classifier, _ := safety.NewClassifier(nil, nil)
	exec := &fakeExecutor{}
	ctrl := New(Deps{
		Suggester:  &fakeSuggester{suggestion: listFiles},
		Classifier: classifier,
		Executor:   exec,
		Prompter:   &scriptedPrompter{lines: []string{"c", "y"}},
		View:       &fakeView{},
	}, Options{})

	res, err := ctrl.Run(context.Background(), "list files")
	if err != nil || res.State != StateExecuted {
		t.Errorf("Expected execution after unavailable copy, got %+v, %v", res, err)
	}
}

func TestRun_ChildReadsSharedStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe() error: %v", err)
	}
	defer pr.Close()

	// the answer and the child's input arrive together, as when typed ahead
	if _, err := pw.Write([]byte("y\nhello\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	pw.Close()

	var out bytes.Buffer
	classifier, _ := safety.NewClassifier(nil, nil)
	ctrl := New(Deps{
		Suggester:  &fakeSuggester{suggestion: &types.Suggestion{Command: "read x; echo got:[$x]", Risk: types.RiskCaution}},
		Classifier: classifier,
		Executor:   &shell.Executor{GOOS: runtime.GOOS, Dir: t.TempDir(), Stdin: pr, Stdout: &out, Stderr: io.Discard},
		Prompter:   ui.NewPrompter(pr, io.Discard),
		View:       &fakeView{},
	}, Options{})

	res, err := ctrl.Run(context.Background(), "read a line")
	if err != nil || res.State != StateExecuted {
		t.Fatalf("Expected execution, got %+v, %v", res, err)
	}
	if got := strings.TrimSpace(out.String()); got != "got:[hello]" {
		t.Errorf("Expected the child to read the next line, got %q", got)
	}
}

func TestState(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		terminal bool
	}{
		{StateIdle, "idle", false},
		{StateAwaitingUpstream, "awaiting_upstream", false},
		{StateAwaitingConfirmation, "awaiting_confirmation", false},
		{StateExecuted, "executed", true},
		{StateDeclined, "declined", true},
		{StateCopied, "copied", true},
		{StateAborted, "aborted", true},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.name {
			t.Errorf("String() = %s, want %s", got, tt.name)
		}
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.name, got, tt.terminal)
		}
	}
}
