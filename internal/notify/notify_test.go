package notify

import "testing"

type capturingBroadcaster struct {
	eventType string
	data      map[string]any
}

func (c *capturingBroadcaster) BroadcastRaw(eventType string, data map[string]any) {
	c.eventType = eventType
	c.data = data
}

func TestPushBuildsNotification(t *testing.T) {
	hub := &capturingBroadcaster{}
	n := NewNotifier(hub)

	n.Push("Low stock", "flour is running low", "low-stock")

	if hub.eventType != "notification" {
		t.Fatalf("event type = %q", hub.eventType)
	}
	notification, ok := hub.data["notification"].(Notification)
	if !ok {
		t.Fatalf("payload = %T, want Notification", hub.data["notification"])
	}
	if notification.ID == "" || notification.CreatedAt == 0 {
		t.Error("id and created_at must be set")
	}
	if notification.ClickHint != "focus-or-open" {
		t.Errorf("click hint = %q", notification.ClickHint)
	}
	if len(notification.Actions) != 2 || notification.Actions[0].Action != "open" {
		t.Errorf("actions = %v", notification.Actions)
	}
	if notification.Tag != "low-stock" {
		t.Errorf("tag = %q", notification.Tag)
	}
}

func TestLowStockMessage(t *testing.T) {
	hub := &capturingBroadcaster{}
	NewNotifier(hub).LowStock("flour", 1.5)

	notification := hub.data["notification"].(Notification)
	if notification.Body != "flour is running low (1.5 left)" {
		t.Errorf("body = %q", notification.Body)
	}
}
