// Package monitor implements the per-account polling and reply cycle: fetch
// recent subscriber messages, drop the already-answered ones, generate a
// reply for each remaining message in chronological order, send it, and
// record the message id only after a confirmed send.
package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rmarques/fanvuebot/internal/database"
	"github.com/rmarques/fanvuebot/internal/fanvue"
	"github.com/rmarques/fanvuebot/internal/state"
)

// PlatformClient is the subset of the platform API one monitor needs,
// scoped to its account's credentials.
type PlatformClient interface {
	FetchNewMessages(ctx context.Context) ([]fanvue.Message, error)
	SendReply(ctx context.Context, conversationID, text string) error
}

// Generator produces a reply to one subscriber message, given the account
// persona and the message with its conversation history.
type Generator interface {
	Generate(ctx context.Context, persona string, msg fanvue.Message) (string, error)
}

// Monitor runs the polling loop for a single account. It is the only
// writer of its account's entries in the state store.
type Monitor struct {
	account      database.Account
	client       PlatformClient
	generator    Generator
	state        *state.Store
	pollInterval time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
}

// New creates a monitor for one account.
func New(
	account database.Account,
	client PlatformClient,
	generator Generator,
	st *state.Store,
	pollInterval time.Duration,
	errorBackoff time.Duration,
	logger *slog.Logger,
) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		account:      account,
		client:       client,
		generator:    generator,
		state:        st,
		pollInterval: pollInterval,
		errorBackoff: errorBackoff,
		logger:       logger.With("component", "monitor", "account_id", account.ID),
	}
}

// Run executes the monitor loop until ctx is cancelled or the account's
// credentials are rejected. Cancellation is cooperative and only takes
// effect between iterations: an in-flight cycle runs to completion so a
// send is never aborted into an ambiguous half-sent state.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("Starting monitor loop", "poll_interval", m.pollInterval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor loop stopped")
			return
		default:
		}

		sleep := m.pollInterval
		// The cycle is detached from ctx so a stop request never aborts an
		// in-flight call; each call still carries its own fixed timeout.
		err := m.runCycle(context.WithoutCancel(ctx))
		switch {
		case err == nil:
		case errors.Is(err, fanvue.ErrAuth):
			m.logger.Error("Credentials rejected, disabling account until next refresh", "error", err)
			return
		case errors.Is(err, fanvue.ErrRateLimited):
			m.logger.Warn("Rate limited by platform, backing off", "error", err)
			sleep = m.errorBackoff
		default:
			m.logger.Error("Poll cycle failed", "error", err)
			sleep = m.errorBackoff
		}

		select {
		case <-ctx.Done():
			m.logger.Info("Monitor loop stopped")
			return
		case <-time.After(sleep):
		}
	}
}

// runCycle performs one fetch/filter/generate/send/record pass.
func (m *Monitor) runCycle(ctx context.Context) error {
	messages, err := m.client.FetchNewMessages(ctx)
	if err != nil {
		return err
	}

	pending := make([]fanvue.Message, 0, len(messages))
	for _, msg := range messages {
		// The client excludes own messages by sender role; the guard here
		// keeps the generator unreachable for them regardless.
		if msg.FromSelf {
			continue
		}
		// Media-only or blank messages carry no text to answer.
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if m.state.IsProcessed(m.account.ID, msg.ID) {
			continue
		}
		pending = append(pending, msg)
	}

	// Nothing unseen: skip straight back to idle without a generation call.
	if len(pending) == 0 {
		return nil
	}

	m.logger.Info("Found unanswered subscriber messages", "count", len(pending))

	for _, msg := range pending {
		reply, err := m.generator.Generate(ctx, m.account.Persona(), msg)
		if err != nil {
			m.logger.Error("Reply generation failed, will retry message next cycle",
				"message_id", msg.ID, "conversation_id", msg.ConversationID, "error", err)
			continue
		}

		if err := m.client.SendReply(ctx, msg.ConversationID, reply); err != nil {
			if errors.Is(err, fanvue.ErrAuth) {
				return err
			}
			m.logger.Error("Failed to send reply, will retry message next cycle",
				"message_id", msg.ID, "conversation_id", msg.ConversationID, "error", err)
			continue
		}

		// Recording happens only after the confirmed send, so a crash in
		// between can at worst skip a reply, never duplicate one.
		if err := m.state.MarkProcessed(m.account.ID, msg.ID); err != nil {
			m.logger.Warn("Failed to persist processed message id", "message_id", msg.ID, "error", err)
		}

		m.logger.Info("Replied to subscriber message",
			"message_id", msg.ID, "conversation_id", msg.ConversationID, "sender", msg.SenderHandle)
	}

	return nil
}
