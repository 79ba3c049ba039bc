// Package script replays a recorded modelling session: a list of describe,
// refine, submit and clear steps run in order against one Studio.
package script

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Action string

const (
	ActionDescribe Action = "describe"
	ActionRefine   Action = "refine"
	ActionSubmit   Action = "submit"
	ActionClear    Action = "clear"
)

var (
	ErrNoSteps       = errors.New("no steps found in script")
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingText   = errors.New("action requires text")
)

func (a Action) needsText() bool {
	return a == ActionDescribe || a == ActionRefine
}

type Step struct {
	Index  int
	Action Action
	Text   string
}

type jsonStep struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
}

// textPrefixes maps a "name:" line prefix to its action.
var textPrefixes = map[string]Action{
	"describe": ActionDescribe,
	"refine":   ActionRefine,
	"adjust":   ActionRefine,
}

func ParseFile(path string) ([]Step, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(file)
	case ".txt", "":
		return ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt or .json", ext)
	}
}

// ParseText reads one step per line. "refine: ..." (or "adjust: ...")
// requests an adjustment, "submit" and "clear" stand alone, and any other
// line is a description. Blank lines and "#" comments are skipped.
func ParseText(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		step := parseLine(line)
		if step.Action.needsText() && step.Text == "" {
			return nil, fmt.Errorf("line %d: %w: %s", lineNo, ErrMissingText, step.Action)
		}
		step.Index = len(steps) + 1
		steps = append(steps, step)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	return steps, nil
}

func parseLine(line string) Step {
	switch strings.ToLower(line) {
	case string(ActionSubmit):
		return Step{Action: ActionSubmit}
	case string(ActionClear):
		return Step{Action: ActionClear}
	}

	if prefix, rest, ok := strings.Cut(line, ":"); ok {
		if action, known := textPrefixes[strings.ToLower(strings.TrimSpace(prefix))]; known {
			return Step{Action: action, Text: strings.TrimSpace(rest)}
		}
	}
	return Step{Action: ActionDescribe, Text: line}
}

func ParseJSON(r io.Reader) ([]Step, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var jsonSteps []jsonStep
	if err := json.Unmarshal(data, &jsonSteps); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if len(jsonSteps) == 0 {
		return nil, ErrNoSteps
	}

	steps := make([]Step, len(jsonSteps))
	for i, js := range jsonSteps {
		action := Action(strings.ToLower(strings.TrimSpace(js.Action)))
		switch action {
		case ActionDescribe, ActionRefine, ActionSubmit, ActionClear:
		default:
			return nil, fmt.Errorf("step %d: %w %q", i+1, ErrUnknownAction, js.Action)
		}

		text := strings.TrimSpace(js.Text)
		if action.needsText() && text == "" {
			return nil, fmt.Errorf("step %d: %w: %s", i+1, ErrMissingText, action)
		}
		steps[i] = Step{Index: i + 1, Action: action, Text: text}
	}
	return steps, nil
}
