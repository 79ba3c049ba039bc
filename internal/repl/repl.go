package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/manash/modelchat/internal/display"
	"github.com/manash/modelchat/internal/preview"
	"github.com/manash/modelchat/internal/studio"
)

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	studio    *studio.Studio
	displayer *display.Displayer
	saver     *preview.Saver
	commands  map[string]Command
	running   bool
}

type Config struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Studio *studio.Studio
	// Displayer draws previews inline. Nil disables inline display.
	Displayer *display.Displayer
	Saver     *preview.Saver
}

func New(cfg *Config) *REPL {
	saver := cfg.Saver
	if saver == nil {
		saver = preview.NewSaver()
	}
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		studio:    cfg.Studio,
		displayer: cfg.Displayer,
		saver:     saver,
		commands:  make(map[string]Command),
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}

// execute dispatches a command, or treats the whole line as a description
// (no preview yet) or an adjustment (preview present). A line that starts with
// a command name but carries more words than the command accepts is free text,
// so "clear glass windows" refines instead of resetting the session.
func (r *REPL) execute(ctx context.Context, line string) error {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := parseCommand(rest)

	cmd, ok := r.commands[strings.ToLower(name)]
	if ok && (cmd.MaxArgs() < 0 || len(args) <= cmd.MaxArgs()) {
		return cmd.Execute(ctx, r, Input{Args: args, Text: rest})
	}

	free := Input{Args: parseCommand(line), Text: line}
	if !r.studio.Session().HasPreview() {
		return (&DescribeCommand{}).Execute(ctx, r, free)
	}
	return (&RefineCommand{}).Execute(ctx, r, free)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "modelchat: 3D model generation")
	fmt.Fprintln(r.out, "Describe the model you want to create and a preview will be generated.")
	fmt.Fprintln(r.out, "Then request adjustments or 'submit' it to HunYuan. Type 'help' for commands.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	sess := r.studio.Session()
	if sess.HasPreview() {
		fmt.Fprintf(r.out, "modelchat [%d adj]> ", sess.AdjustmentCount())
		return
	}
	fmt.Fprint(r.out, "modelchat> ")
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
