package notify

import (
	"context"

	"order_pacer/internal/logbus"
)

// Bus publishes operator messages on the log bus as "notification" events so
// /ws clients see the same text as the chat.
type Bus struct {
	bus *logbus.Bus
}

func NewBus(bus *logbus.Bus) Bus {
	return Bus{bus: bus}
}

func (b Bus) Notify(_ context.Context, text string) error {
	b.bus.Publish("notification", map[string]any{"text": text})
	return nil
}
