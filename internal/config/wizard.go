// Package config - Interactive setup wizard
package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ModelLister returns the models available for the given settings
type ModelLister func(ctx context.Context, s Settings) ([]string, error)

// Wizard walks the user through provider, key, model and output choices
type Wizard struct {
	reader     *bufio.Reader
	out        io.Writer
	secretFd   int
	listModels ModelLister
}

// NewWizard creates a wizard reading from in. When in is a terminal the API
// key is read without echo.
func NewWizard(in io.Reader, out io.Writer, lister ModelLister) *Wizard {
	w := &Wizard{
		reader:     bufio.NewReader(in),
		out:        out,
		secretFd:   -1,
		listModels: lister,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		w.secretFd = int(f.Fd())
	}
	return w
}

// Run starts from current and returns the edited settings. It does not save.
func (w *Wizard) Run(ctx context.Context, current Settings) (Settings, error) {
	s := current

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "🔧 tella setup")
	fmt.Fprintln(w.out, strings.Repeat("━", 50))
	fmt.Fprintln(w.out)

	fmt.Fprintln(w.out, "Which model provider would you like to use?")
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "  1) Cerebras  - cloud, requires API key")
	fmt.Fprintln(w.out, "  2) Ollama    - local, fully offline")
	fmt.Fprintln(w.out, "  3) OpenAI    - cloud, requires API key")
	fmt.Fprintln(w.out, "  4) Other     - any OpenAI-compatible API")
	fmt.Fprintln(w.out)

	choice, err := w.ask(fmt.Sprintf("Choice [1-4] (current: %s): ", s.Provider.Name))
	if err != nil {
		return current, err
	}

	previous := s.Provider.Name
	switch choice {
	case "":
	case "1":
		s.Provider.Name = ProviderCerebras
	case "2":
		s.Provider.Name = ProviderOllama
	case "3":
		s.Provider.Name = ProviderOpenAI
	case "4":
		s.Provider.Name = ProviderGeneric
	default:
		return current, fmt.Errorf("invalid provider choice: %q", choice)
	}
	if s.Provider.Name != previous {
		s.Provider.Endpoint = DefaultEndpoint(s.Provider.Name)
		s.Provider.APIKey = ""
		s.Provider.APIKeyEnv = defaultKeyEnv(s.Provider.Name)
		s.Model.Name = ""
	}

	if err := w.configureEndpoint(&s); err != nil {
		return current, err
	}
	if err := w.configureKey(&s); err != nil {
		return current, err
	}
	if err := w.configureModel(ctx, &s); err != nil {
		return current, err
	}
	if err := w.configurePreferences(&s); err != nil {
		return current, err
	}

	if result := Validate(s); !result.IsValid() {
		return current, fmt.Errorf("invalid settings:\n%s", result.String())
	}
	return s, nil
}

func (w *Wizard) configureEndpoint(s *Settings) error {
	if s.Provider.Name != ProviderOllama && s.Provider.Name != ProviderGeneric {
		return nil
	}
	def := s.Endpoint()
	endpoint, err := w.ask(fmt.Sprintf("Endpoint [%s]: ", def))
	if err != nil {
		return err
	}
	if endpoint == "" {
		endpoint = def
	}
	s.Provider.Endpoint = endpoint
	return nil
}

func (w *Wizard) configureKey(s *Settings) error {
	if s.Provider.Name == ProviderOllama {
		s.Provider.APIKey = ""
		s.Provider.APIKeyEnv = ""
		return nil
	}

	fmt.Fprintln(w.out)
	if s.Provider.APIKeyEnv != "" && os.Getenv(s.Provider.APIKeyEnv) != "" {
		fmt.Fprintf(w.out, "✓ Found %s in the environment\n", s.Provider.APIKeyEnv)
	}

	prompt := "API key (leave empty to keep the current one): "
	if s.Provider.APIKey == "" {
		prompt = "API key (leave empty to use the environment): "
	}
	key, err := w.askSecret(prompt)
	if err != nil {
		return err
	}
	if key != "" {
		s.Provider.APIKey = key
	}
	return nil
}

func (w *Wizard) configureModel(ctx context.Context, s *Settings) error {
	var models []string
	switch {
	case s.Provider.Name == ProviderCerebras:
		models = CerebrasModels
	case w.listModels != nil:
		fmt.Fprintln(w.out)
		fmt.Fprintln(w.out, "🔍 Fetching available models...")
		list, err := w.listModels(ctx, *s)
		if err != nil {
			fmt.Fprintf(w.out, "⚠ Could not list models: %v\n", err)
		}
		models = list
	}

	fmt.Fprintln(w.out)
	if len(models) > 0 {
		fmt.Fprintln(w.out, "Available models:")
		for i, m := range models {
			fmt.Fprintf(w.out, "  %d) %s\n", i+1, m)
		}
		fmt.Fprintln(w.out)
	}

	def := s.Model.Name
	if def == "" && len(models) > 0 {
		def = models[0]
	}
	answer, err := w.ask(fmt.Sprintf("Model (number or name) [%s]: ", def))
	if err != nil {
		return err
	}

	switch {
	case answer == "":
		s.Model.Name = def
	default:
		if n, err := strconv.Atoi(answer); err == nil && len(models) > 0 {
			if n < 1 || n > len(models) {
				return fmt.Errorf("model choice out of range: %d", n)
			}
			s.Model.Name = models[n-1]
		} else {
			s.Model.Name = answer
		}
	}
	return nil
}

func (w *Wizard) configurePreferences(s *Settings) error {
	fmt.Fprintln(w.out)
	auto, err := w.askBool("Run SAFE commands without asking?", s.AutoRunSafe())
	if err != nil {
		return err
	}
	if auto {
		s.Safety.AutoConfirm = AutoConfirmSafe
	} else {
		s.Safety.AutoConfirm = AutoConfirmNone
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Output settings:")
	if s.UI.ShowSummary, err = w.askBool("  Show summary?", s.UI.ShowSummary); err != nil {
		return err
	}
	if s.UI.ShowExplanation, err = w.askBool("  Show explanation?", s.UI.ShowExplanation); err != nil {
		return err
	}
	if s.UI.ShowRisk, err = w.askBool("  Show risk level?", s.UI.ShowRisk); err != nil {
		return err
	}
	return nil
}

func (w *Wizard) ask(prompt string) (string, error) {
	fmt.Fprint(w.out, prompt)
	line, err := w.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (w *Wizard) askBool(prompt string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	answer, err := w.ask(fmt.Sprintf("%s [%s]: ", prompt, hint))
	if err != nil {
		return def, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return def, fmt.Errorf("expected y or n, got %q", answer)
	}
}

func (w *Wizard) askSecret(prompt string) (string, error) {
	if w.secretFd < 0 {
		return w.ask(prompt)
	}
	fmt.Fprint(w.out, prompt)
	b, err := term.ReadPassword(w.secretFd)
	fmt.Fprintln(w.out)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case ProviderCerebras:
		return "CEREBRAS_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
