package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"auction-tracker/internal/config"
)

// TerminalDispatcher prints each message as a single highlighted line,
// for running the sweeper in the foreground.
type TerminalDispatcher struct {
	out         io.Writer
	mu          sync.Mutex
	enabled     bool
	bellEnabled bool
	now         func() time.Time
}

// NewTerminalDispatcher creates a TerminalDispatcher writing to out.
func NewTerminalDispatcher(cfg config.TerminalConfig, out io.Writer) *TerminalDispatcher {
	return &TerminalDispatcher{
		out:         out,
		enabled:     cfg.Enabled && out != nil,
		bellEnabled: cfg.Bell,
		now:         time.Now,
	}
}

// Name returns the name of the channel.
func (t *TerminalDispatcher) Name() string {
	return "terminal"
}

// IsEnabled returns whether the channel is enabled.
func (t *TerminalDispatcher) IsEnabled() bool {
	return t.enabled
}

// Dispatch writes the message to the terminal.
func (t *TerminalDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if !t.enabled {
		return nil
	}

	line := FormatTerminal(msg, t.now())

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bellEnabled {
		fmt.Fprint(t.out, "\a")
	}
	_, err := fmt.Fprintln(t.out, line)
	return err
}

// FormatTerminal renders a message as "[15:04:05] 🔔 ENDED | subject | to".
func FormatTerminal(msg Message, at time.Time) string {
	var sb strings.Builder

	stamp := color.New(color.FgYellow).Sprintf("[%s] 🔔 ENDED", at.Format("15:04:05"))
	sb.WriteString(stamp)
	sb.WriteString(" | ")
	sb.WriteString(msg.Subject)
	if msg.To != "" {
		sb.WriteString(" | ")
		sb.WriteString(color.New(color.Faint).Sprint(msg.To))
	}

	return sb.String()
}
