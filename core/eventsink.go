package core

import "pkt.systems/labterm/schema"

// EventSink receives session events from the core service.
type EventSink interface {
	OnOutput(event schema.OutputEvent)
	OnTick(event schema.TickEvent)
	OnLifecycle(event schema.LifecycleEvent)
}
