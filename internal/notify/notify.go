// Package notify delivers auction notifications to users.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"auction-tracker/internal/config"
	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/store"
)

// Message is a single notification addressed to one recipient.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Dispatcher hands a message to a delivery channel and reports the outcome
// synchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Channel is a Dispatcher that can be toggled by configuration.
type Channel interface {
	Dispatcher
	Name() string
	IsEnabled() bool
}

// AuctionEnded composes the message sent when a watched auction closes.
func AuctionEnded(to, cardName, itemID, resultsBaseURL string) Message {
	link := ResultsLink(resultsBaseURL, itemID)
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your watched auction for %s has ended", cardName),
		Text: fmt.Sprintf("Your watched auction for %s has ended. You can now claim or check the results.\n\n%s",
			cardName, link),
		HTML: fmt.Sprintf("<p>Your watched auction for <strong>%s</strong> has ended.</p>\n"+
			"<p><a href=\"%s\">Click here to view the results</a></p>",
			html.EscapeString(cardName), html.EscapeString(link)),
	}
}

// ResultsLink builds the results URL for an item.
func ResultsLink(baseURL, itemID string) string {
	return strings.TrimRight(baseURL, "/") + "/auctions/" + itemID
}

// MultiDispatcher sends every message to all enabled channels.
type MultiDispatcher struct {
	channels []Channel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiDispatcher creates a MultiDispatcher from configuration. The
// outbox channel needs a mail store; pass nil to leave it out. The webhook
// and email channels are guarded by a circuit breaker.
func NewMultiDispatcher(cfg *config.NotificationConfig, mail store.MailStore, logger zerolog.Logger) *MultiDispatcher {
	md := &MultiDispatcher{logger: logger}

	if cfg.Outbox.Enabled && mail != nil {
		md.channels = append(md.channels, NewOutboxDispatcher(mail))
	}
	if cfg.Webhook.Enabled {
		md.channels = append(md.channels, Guard(NewWebhookDispatcher(cfg.Webhook), cfg.Breaker))
	}
	if cfg.Email.Enabled {
		md.channels = append(md.channels, Guard(NewEmailDispatcher(cfg.Email), cfg.Breaker))
	}

	return md
}

// AddChannel adds a notification channel.
func (md *MultiDispatcher) AddChannel(ch Channel) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.channels = append(md.channels, ch)
}

// Channels returns the names of the enabled channels.
func (md *MultiDispatcher) Channels() []string {
	md.mu.RLock()
	defer md.mu.RUnlock()

	var names []string
	for _, ch := range md.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// Dispatch sends msg to every enabled channel. It fails if no channel is
// enabled or if any channel fails.
func (md *MultiDispatcher) Dispatch(ctx context.Context, msg Message) error {
	md.mu.RLock()
	channels := md.channels
	md.mu.RUnlock()

	sent := 0
	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Dispatch(ctx, msg); err != nil {
			md.logger.Debug().Err(err).Str("channel", ch.Name()).Msg("Channel dispatch failed")
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			continue
		}
		sent++
	}

	if len(errs) > 0 {
		return apperrors.NewDispatchError("multi", msg.To, fmt.Errorf("%s", strings.Join(errs, "; ")))
	}
	if sent == 0 {
		return apperrors.NewDispatchError("multi", msg.To, apperrors.ErrNoChannels)
	}
	return nil
}

// NoOpDispatcher accepts every message and does nothing.
type NoOpDispatcher struct{}

// NewNoOpDispatcher creates a new NoOpDispatcher.
func NewNoOpDispatcher() *NoOpDispatcher {
	return &NoOpDispatcher{}
}

// Dispatch does nothing.
func (n *NoOpDispatcher) Dispatch(ctx context.Context, msg Message) error {
	return nil
}
