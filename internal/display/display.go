package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/manash/modelchat/pkg/models"
)

const (
	ModeAuto   = "auto"
	ModeAlways = "always"
	ModeNever  = "never"
)

// Source resolves the encoded bytes behind a preview. *preview.Saver satisfies it.
type Source interface {
	Bytes(ctx context.Context, p *models.Preview) ([]byte, error)
}

// Displayer renders previews inline in kitty-compatible terminals.
type Displayer struct {
	out io.Writer
	src Source
}

func New(out io.Writer, src Source) *Displayer {
	return &Displayer{out: out, src: src}
}

func (d *Displayer) Display(ctx context.Context, p *models.Preview) error {
	data, err := d.src.Bytes(ctx, p)
	if err != nil {
		return err
	}

	if p.Format != models.FormatPNG {
		if data, err = toPNG(data); err != nil {
			return err
		}
	}

	if err := NewKittyEncoder(d.out).Encode(data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	fmt.Fprintln(d.out)
	return nil
}

// Clear removes the inline preview, if any.
func (d *Displayer) Clear() error {
	return NewKittyEncoder(d.out).Delete()
}

// kitty only takes PNG for f=100
func toPNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Enabled decides whether previews are drawn inline. In auto mode that needs
// an interactive terminal on fd that speaks the kitty protocol.
func Enabled(mode string, fd int, getenv func(string) string) bool {
	switch mode {
	case ModeAlways:
		return true
	case ModeNever:
		return false
	default:
		return term.IsTerminal(fd) && IsTerminalSupported(getenv)
	}
}

func IsTerminalSupported(getenv func(string) string) bool {
	termProgram := strings.ToLower(getenv("TERM_PROGRAM"))
	if slices.Contains([]string{"kitty", "ghostty", "iterm.app", "wezterm"}, termProgram) {
		return true
	}

	if getenv("KITTY_WINDOW_ID") != "" || getenv("ITERM_SESSION_ID") != "" {
		return true
	}

	t := strings.ToLower(getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}
