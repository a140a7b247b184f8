// Package notify provides the push-style user notification surface.
package notify

import (
	"fmt"
	"time"

	"github.com/nalvarez/comanda/internal/ident"
	"github.com/nalvarez/comanda/internal/logging"
)

// Action is one button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is a pushed user notification. The click hint tells the
// receiving page to focus an existing open view or open a new one.
type Notification struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Actions   []Action `json:"actions"`
	Tag       string   `json:"tag,omitempty"`
	ClickHint string   `json:"click_hint"`
	CreatedAt int64    `json:"created_at"`
}

// Broadcaster delivers envelopes to connected clients. The realtime hub
// satisfies it.
type Broadcaster interface {
	BroadcastRaw(eventType string, data map[string]any)
}

// Notifier builds and pushes notifications.
type Notifier struct {
	hub Broadcaster
}

// NewNotifier creates a notifier over the given broadcaster.
func NewNotifier(hub Broadcaster) *Notifier {
	return &Notifier{hub: hub}
}

// Push sends a notification with the standard open/close action pair.
func (n *Notifier) Push(title, body, tag string) {
	notification := Notification{
		ID:    ident.NewEnvelopeID(),
		Title: title,
		Body:  body,
		Actions: []Action{
			{Action: "open", Title: "Open"},
			{Action: "close", Title: "Dismiss"},
		},
		Tag:       tag,
		ClickHint: "focus-or-open",
		CreatedAt: time.Now().Unix(),
	}

	n.hub.BroadcastRaw("notification", map[string]any{
		"notification": notification,
	})
	logging.Debug("notification pushed", logging.Fields{"title": title, "tag": tag})
}

// LowStock pushes a low inventory warning for one ingredient.
func (n *Notifier) LowStock(name string, quantity float64) {
	n.Push("Low stock", fmt.Sprintf("%s is running low (%.1f left)", name, quantity), "low-stock")
}
