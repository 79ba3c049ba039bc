package repl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/manash/modelchat/internal/history"
	"github.com/manash/modelchat/internal/preview"
	"github.com/manash/modelchat/internal/security"
	"github.com/manash/modelchat/internal/studio"
	"github.com/manash/modelchat/pkg/models"
)

var ErrNoPreview = errors.New("no preview yet; describe a model first")

// Input is a command's argument list plus the raw text after the command name.
type Input struct {
	Args []string
	Text string
}

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	// MaxArgs bounds the words a command accepts after its name; a line with
	// more is free text. Negative means unbounded.
	MaxArgs() int
	Execute(ctx context.Context, r *REPL, in Input) error
}

func allCommands() []Command {
	return []Command{
		&DescribeCommand{},
		&RefineCommand{},
		&SubmitCommand{},
		&ClearCommand{},
		&HistoryCommand{},
		&AdjustmentsCommand{},
		&ShowCommand{},
		&SaveCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// DescribeCommand generates a preview from a description
type DescribeCommand struct{}

func (c *DescribeCommand) Name() string        { return "describe" }
func (c *DescribeCommand) Aliases() []string   { return []string{"d", "gen"} }
func (c *DescribeCommand) Description() string { return "Generate a preview from a model description" }
func (c *DescribeCommand) Usage() string       { return "describe <description>" }
func (c *DescribeCommand) MaxArgs() int        { return -1 }

func (c *DescribeCommand) Execute(ctx context.Context, r *REPL, in Input) error {
	if in.Text == "" {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	step, err := r.studio.Generate(ctx, in.Text)
	if err != nil {
		return err
	}
	r.printStep(ctx, step)
	return nil
}

// RefineCommand applies an adjustment to the current preview
type RefineCommand struct{}

func (c *RefineCommand) Name() string        { return "refine" }
func (c *RefineCommand) Aliases() []string   { return []string{"r", "adjust"} }
func (c *RefineCommand) Description() string { return "Request an adjustment to the current preview" }
func (c *RefineCommand) Usage() string       { return "refine <adjustment>" }
func (c *RefineCommand) MaxArgs() int        { return -1 }

func (c *RefineCommand) Execute(ctx context.Context, r *REPL, in Input) error {
	if in.Text == "" {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	step, err := r.studio.Refine(ctx, in.Text)
	if err != nil {
		return err
	}
	r.printStep(ctx, step)
	return nil
}

// SubmitCommand sends the session to HunYuan
type SubmitCommand struct{}

func (c *SubmitCommand) Name() string        { return "submit" }
func (c *SubmitCommand) Aliases() []string   { return []string{"send"} }
func (c *SubmitCommand) Description() string { return "Submit the model and its history to HunYuan" }
func (c *SubmitCommand) Usage() string       { return "submit" }
func (c *SubmitCommand) MaxArgs() int        { return 0 }

func (c *SubmitCommand) Execute(ctx context.Context, r *REPL, _ Input) error {
	result := r.studio.Submit(ctx)

	fmt.Fprintf(r.out, "Status: %s\n", result.Status)
	fmt.Fprintf(r.out, "Message: %s\n", result.Message)
	if result.TrackingID != "" {
		fmt.Fprintf(r.out, "Tracking ID: %s\n", result.TrackingID)
	}
	fmt.Fprintf(r.out, "Preview included: %s\n", yesNo(result.PreviewIncluded))
	return nil
}

// ClearCommand starts a fresh session
type ClearCommand struct{}

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Aliases() []string   { return []string{"reset"} }
func (c *ClearCommand) Description() string { return "Clear the chat and start a new session" }
func (c *ClearCommand) Usage() string       { return "clear" }
func (c *ClearCommand) MaxArgs() int        { return 0 }

func (c *ClearCommand) Execute(_ context.Context, r *REPL, _ Input) error {
	discarded := r.studio.Session().MessageCount()
	r.studio.Clear()
	if r.displayer != nil {
		if err := r.displayer.Clear(); err != nil {
			fmt.Fprintf(r.err, "Warning: failed to clear preview: %v\n", err)
		}
	}
	fmt.Fprintf(r.out, "Session cleared (%d messages discarded)\n", discarded)
	return nil
}

// HistoryCommand prints the conversation
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "hist"} }
func (c *HistoryCommand) Description() string { return "Show the conversation so far" }
func (c *HistoryCommand) Usage() string       { return "history" }
func (c *HistoryCommand) MaxArgs() int        { return 0 }

func (c *HistoryCommand) Execute(_ context.Context, r *REPL, _ Input) error {
	if r.studio.Session().IsEmpty() {
		fmt.Fprintln(r.out, "No messages yet")
		return nil
	}

	snap := r.studio.Snapshot()
	for i, msg := range snap.Conversation {
		fmt.Fprintf(r.out, "[%d] %s %-9s %s\n",
			i+1,
			history.FormatTimestamp(msg.Timestamp),
			msg.Role+":",
			msg.Content)
	}
	return nil
}

// AdjustmentsCommand lists recorded adjustment requests
type AdjustmentsCommand struct{}

func (c *AdjustmentsCommand) Name() string        { return "adjustments" }
func (c *AdjustmentsCommand) Aliases() []string   { return []string{"adj"} }
func (c *AdjustmentsCommand) Description() string { return "List adjustment requests" }
func (c *AdjustmentsCommand) Usage() string       { return "adjustments" }
func (c *AdjustmentsCommand) MaxArgs() int        { return 0 }

func (c *AdjustmentsCommand) Execute(_ context.Context, r *REPL, _ Input) error {
	adjs := r.studio.Snapshot().Adjustments
	if len(adjs) == 0 {
		fmt.Fprintln(r.out, "No adjustments yet")
		return nil
	}
	for i, adj := range adjs {
		fmt.Fprintf(r.out, "%d. %s (%s)\n", i+1, adj.Text, humanize.Time(adj.CreatedAt))
	}
	return nil
}

// ShowCommand displays the current preview
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display", "view"} }
func (c *ShowCommand) Description() string { return "Show the current preview" }
func (c *ShowCommand) Usage() string       { return "show" }
func (c *ShowCommand) MaxArgs() int        { return 0 }

func (c *ShowCommand) Execute(ctx context.Context, r *REPL, _ Input) error {
	p := r.studio.Preview()
	if p == nil {
		return ErrNoPreview
	}
	r.printPreview(p)
	if r.displayer == nil {
		fmt.Fprintln(r.out, "Inline display is off; use 'save' to write the preview to a file")
		return nil
	}
	return r.displayer.Display(ctx, p)
}

// SaveCommand writes the current preview to disk
type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"s"} }
func (c *SaveCommand) Description() string { return "Save the current preview to a file" }
func (c *SaveCommand) Usage() string       { return "save [filename]" }
func (c *SaveCommand) MaxArgs() int        { return 1 }

func (c *SaveCommand) Execute(ctx context.Context, r *REPL, in Input) error {
	p := r.studio.Preview()
	if p == nil {
		return ErrNoPreview
	}

	destPath := preview.DefaultFilename(p)
	if len(in.Args) > 0 {
		destPath = in.Args[0]
	}
	if err := security.ValidatePreviewPath(destPath); err != nil {
		return fmt.Errorf("invalid save path: %w", err)
	}

	if err := r.saver.Save(ctx, p, destPath); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}

	size := len(p.Data)
	fmt.Fprintf(r.out, "Saved: %s", destPath)
	if size > 0 {
		fmt.Fprintf(r.out, " (%s)", humanize.Bytes(uint64(size)))
	}
	fmt.Fprintln(r.out)
	return nil
}

type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }
func (c *HelpCommand) MaxArgs() int        { return 0 }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ Input) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-24s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "  %-24sUsage: %s\n", "", cmd.Usage())
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Any other text describes a new model, or adjusts the current one once a preview exists.")
	return nil
}

type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }
func (c *QuitCommand) MaxArgs() int        { return 0 }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ Input) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func (r *REPL) printStep(ctx context.Context, step *studio.StepResult) {
	fmt.Fprintln(r.out, step.Reply.Content)
	if !step.OK || step.Preview == nil {
		return
	}

	r.printPreview(step.Preview)
	if r.displayer != nil {
		if err := r.displayer.Display(ctx, step.Preview); err != nil {
			fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
		}
	}
}

func (r *REPL) printPreview(p *models.Preview) {
	parts := []string{string(p.Source)}
	if dims := p.Dimensions(); dims != "" {
		parts = append(parts, dims)
	}
	if p.Format != "" {
		parts = append(parts, p.Format.String())
	}
	if len(p.Data) > 0 {
		parts = append(parts, humanize.Bytes(uint64(len(p.Data))))
	}
	fmt.Fprintf(r.out, "Preview: %s\n", strings.Join(parts, ", "))
	if p.Cost > 0 {
		fmt.Fprintf(r.out, "Cost: $%.4f\n", p.Cost)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
