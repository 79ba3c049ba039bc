package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/manash/modelchat/internal/preview"
	"github.com/manash/modelchat/internal/studio"
	"github.com/manash/modelchat/pkg/models"
)

type Result struct {
	Step       Step
	Reply      string
	Path       string
	Cost       float64
	Submission *models.SubmissionResult
	Error      error
	Duration   time.Duration
}

type Options struct {
	// OutputDir receives every successful preview. Empty skips saving.
	OutputDir   string
	StopOnError bool
}

type Player struct {
	studio *studio.Studio
	saver  *preview.Saver
	out    io.Writer
	err    io.Writer
}

func NewPlayer(st *studio.Studio, saver *preview.Saver, out, errOut io.Writer) *Player {
	if saver == nil {
		saver = preview.NewSaver()
	}
	return &Player{
		studio: st,
		saver:  saver,
		out:    out,
		err:    errOut,
	}
}

// Replay runs steps in order. It stops early when ctx is done, or after the
// first failing step when opts.StopOnError is set.
func (p *Player) Replay(ctx context.Context, steps []Step, opts *Options) ([]Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	results := make([]Result, 0, len(steps))
	total := len(steps)

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := p.replayStep(ctx, step, opts, i+1, total)
		results = append(results, result)

		if result.Error != nil && opts.StopOnError {
			return results, fmt.Errorf("replay stopped at step %d: %w", step.Index, result.Error)
		}
	}
	return results, nil
}

func (p *Player) replayStep(ctx context.Context, step Step, opts *Options, current, total int) Result {
	start := time.Now()
	result := Result{Step: step}

	if step.Text != "" {
		fmt.Fprintf(p.out, "[%d/%d] %s: %q\n", current, total, step.Action, truncate(step.Text, 60))
	} else {
		fmt.Fprintf(p.out, "[%d/%d] %s\n", current, total, step.Action)
	}

	switch step.Action {
	case ActionDescribe, ActionRefine:
		var sr *studio.StepResult
		var err error
		if step.Action == ActionDescribe {
			sr, err = p.studio.Generate(ctx, step.Text)
		} else {
			sr, err = p.studio.Refine(ctx, step.Text)
		}
		if err != nil {
			result.Error = err
			break
		}

		result.Reply = sr.Reply.Content
		fmt.Fprintf(p.out, "       %s\n", sr.Reply.Content)
		if !sr.OK {
			result.Error = sr.Err
			break
		}
		result.Cost = sr.Preview.Cost

		if opts.OutputDir != "" {
			path := filepath.Join(opts.OutputDir, previewFilename(step, sr.Preview.Format))
			if err := p.saver.Save(ctx, sr.Preview, path); err != nil {
				result.Error = fmt.Errorf("save failed: %w", err)
				break
			}
			result.Path = path
			fmt.Fprintf(p.out, "       Saved: %s\n", path)
		}

	case ActionSubmit:
		sub := p.studio.Submit(ctx)
		result.Submission = sub
		fmt.Fprintf(p.out, "       %s: %s\n", sub.Status, sub.Message)
		if sub.TrackingID != "" {
			fmt.Fprintf(p.out, "       Tracking ID: %s\n", sub.TrackingID)
		}
		if !sub.OK() {
			result.Error = errors.New(sub.Message)
		}

	case ActionClear:
		p.studio.Clear()
		fmt.Fprintln(p.out, "       Session cleared")

	default:
		result.Error = fmt.Errorf("%w %q", ErrUnknownAction, step.Action)
	}

	if result.Error != nil {
		fmt.Fprintf(p.err, "       Error: %v\n", result.Error)
	}
	result.Duration = time.Since(start)
	return result
}

func previewFilename(step Step, format models.OutputFormat) string {
	if format == "" {
		format = models.FormatPNG
	}
	ext := format.String()
	if format == models.FormatJPEG {
		ext = "jpg"
	}
	return fmt.Sprintf("%03d-%s-%s.%s", step.Index, step.Action, slugify(step.Text), ext)
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)

func slugify(text string) string {
	slug := slugPattern.ReplaceAllString(text, "")
	slug = strings.ToLower(slug)
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > 50 {
		slug = strings.TrimSuffix(slug[:50], "-")
	}
	if slug == "" {
		slug = "preview"
	}
	return slug
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func (p *Player) PrintSummary(results []Result) {
	var succeeded, failed int
	var totalCost float64
	var failures []Result
	var submissions []*models.SubmissionResult

	for _, r := range results {
		if r.Error != nil {
			failed++
			failures = append(failures, r)
		} else {
			succeeded++
			totalCost += r.Cost
		}
		if r.Submission != nil && r.Submission.OK() {
			submissions = append(submissions, r.Submission)
		}
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "  Steps: %d/%d succeeded\n", succeeded, len(results))
	if failed > 0 {
		fmt.Fprintf(p.out, "  Failed: %d (see errors below)\n", failed)
	}
	fmt.Fprintf(p.out, "  Total cost: $%.4f\n", totalCost)
	for _, sub := range submissions {
		fmt.Fprintf(p.out, "  Submitted: %s\n", sub.TrackingID)
	}

	if len(failures) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Errors:")
		for _, f := range failures {
			fmt.Fprintf(p.out, "  [%d] %s %q: %v\n", f.Step.Index, f.Step.Action, truncate(f.Step.Text, 40), f.Error)
		}
	}
}
