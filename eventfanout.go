package labterm

import (
	"pkt.systems/labterm/core"
	"pkt.systems/labterm/schema"
)

// eventFanout delivers every service event to each sink in order.
type eventFanout struct {
	sinks []core.EventSink
}

func newEventSink(sinks ...core.EventSink) core.EventSink {
	kept := make([]core.EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return eventFanout{sinks: kept}
	}
}

func (f eventFanout) OnOutput(event schema.OutputEvent) {
	for _, sink := range f.sinks {
		sink.OnOutput(event)
	}
}

func (f eventFanout) OnTick(event schema.TickEvent) {
	for _, sink := range f.sinks {
		sink.OnTick(event)
	}
}

func (f eventFanout) OnLifecycle(event schema.LifecycleEvent) {
	for _, sink := range f.sinks {
		sink.OnLifecycle(event)
	}
}
