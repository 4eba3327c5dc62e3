// Package notify dispatches account notifications (confirmation and
// password reset links) to a message broker. Delivery is fire-and-forget:
// failures are logged and never reach the caller.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/homefinder/apiserver/internal/mq"
	"github.com/homefinder/apiserver/types"
)

const publishTimeout = 5 * time.Second

// Kind identifies the notification template.
type Kind string

const (
	KindAccountConfirmation Kind = "account.confirm"
	KindPasswordReset       Kind = "password.reset"
)

// Event is the payload published for each notification.
type Event struct {
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier publishes events on a single broker channel. A nil backend only
// logs the event, which is what local development runs with.
type Notifier struct {
	backend mq.Backend
	channel string
	appURL  string
	logger  *slog.Logger
}

func New(backend mq.Backend, channel, appURL string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		backend: backend,
		channel: channel,
		appURL:  appURL,
		logger:  logger,
	}
}

// SendAccountConfirmation announces the link that confirms a new account.
func (n *Notifier) SendAccountConfirmation(ctx context.Context, user types.User) {
	n.dispatch(ctx, KindAccountConfirmation, user, "/auth/confirm/")
}

// SendPasswordReset announces the link that lets the user pick a new password.
func (n *Notifier) SendPasswordReset(ctx context.Context, user types.User) {
	n.dispatch(ctx, KindPasswordReset, user, "/auth/reset-password/")
}

func (n *Notifier) dispatch(ctx context.Context, kind Kind, user types.User, path string) {
	if user.Token == nil {
		n.logger.Warn("notification skipped: user has no pending token", "kind", kind, "user_id", user.ID)
		return
	}

	event := Event{
		Kind:      kind,
		Name:      user.Name,
		Email:     user.Email,
		Link:      n.appURL + path + *user.Token,
		CreatedAt: time.Now(),
	}

	if n.backend == nil {
		n.logger.Info("notification", "kind", kind, "email", event.Email, "link", event.Link)
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("notification encode failed", "kind", kind, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	id, err := n.backend.Publish(ctx, n.channel, data, map[string]string{"kind": string(kind)})
	if err != nil {
		n.logger.Error("notification publish failed", "kind", kind, "user_id", user.ID, "err", err)
		return
	}
	n.logger.Debug("notification published", "kind", kind, "message_id", id)
}

// Decode parses a broker message back into an Event.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, fmt.Errorf("decode notification %s: %w", msg.ID, err)
	}
	return event, nil
}

// Tail consumes the notification channel and passes every event to fn
// until ctx is done.
func Tail(ctx context.Context, backend mq.Backend, channel string, fn func(Event)) error {
	return backend.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		event, err := Decode(msg)
		if err != nil {
			return err
		}
		fn(event)
		return nil
	})
}
