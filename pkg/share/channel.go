package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aymanbagabas/go-osc52/v2"
)

// ErrUnavailable is returned by a channel that cannot deliver in this environment
var ErrUnavailable = errors.New("share channel unavailable")

// Channel delivers share text somewhere the player can paste it from
type Channel interface {
	Name() string
	Share(ctx context.Context, text string) error
}

// Notice is the transient message shown after a share attempt
type Notice struct {
	Channel string
	Message string
	OK      bool
}

// ClipboardChannel copies text to the system clipboard of the controlling
// terminal using an OSC 52 escape sequence.
type ClipboardChannel struct {
	Out io.Writer
	// Tmux wraps the sequence for tmux passthrough
	Tmux bool
	// Enabled reports whether the terminal accepts OSC 52; nil means always
	Enabled func() bool
}

// NewClipboardChannel writes to the terminal on stdout and detects tmux from TMUX
func NewClipboardChannel() *ClipboardChannel {
	return &ClipboardChannel{
		Out:  os.Stdout,
		Tmux: os.Getenv("TMUX") != "",
		Enabled: func() bool {
			return os.Getenv("TERM") != "dumb"
		},
	}
}

// Name returns "clipboard"
func (c *ClipboardChannel) Name() string { return "clipboard" }

// Share writes the OSC 52 sequence
func (c *ClipboardChannel) Share(ctx context.Context, text string) error {
	if c.Out == nil || (c.Enabled != nil && !c.Enabled()) {
		return ErrUnavailable
	}
	seq := osc52.New(text)
	if c.Tmux {
		seq = seq.Tmux()
	}
	if _, err := seq.WriteTo(c.Out); err != nil {
		return fmt.Errorf("failed to write clipboard sequence: %w", err)
	}
	return nil
}

// ManualChannel prints the text with a prompt to copy it by hand
type ManualChannel struct {
	Out io.Writer
}

// Name returns "manual"
func (m *ManualChannel) Name() string { return "manual" }

// Share prints the text
func (m *ManualChannel) Share(ctx context.Context, text string) error {
	if m.Out == nil {
		return ErrUnavailable
	}
	_, err := fmt.Fprintf(m.Out, "Copy and share:\n\n%s\n", text)
	return err
}

// Sharer tries its channels in order and reports the outcome as a Notice
type Sharer struct {
	channels []Channel
	logger   *slog.Logger
}

// NewSharer creates a sharer. The last channel acts as the fallback for all earlier ones.
func NewSharer(logger *slog.Logger, channels ...Channel) *Sharer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sharer{channels: channels, logger: logger}
}

// Share delivers text through the first channel that succeeds. It never fails;
// the returned Notice says what happened.
func (s *Sharer) Share(ctx context.Context, text string) Notice {
	for _, ch := range s.channels {
		err := s.try(ctx, ch, text)
		if err == nil {
			return Notice{Channel: ch.Name(), Message: noticeMessage(ch.Name()), OK: true}
		}
		s.logger.Debug("share channel failed", "channel", ch.Name(), "error", err)
	}
	return Notice{Message: "Sharing is not available here, copy the text manually"}
}

// try shields the caller from a channel that panics
func (s *Sharer) try(ctx context.Context, ch Channel, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("share channel %s panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Share(ctx, text)
}

func noticeMessage(channel string) string {
	switch channel {
	case "clipboard":
		return "Copied to clipboard"
	case "manual":
		return "Ready to copy"
	default:
		return "Shared via " + channel
	}
}
