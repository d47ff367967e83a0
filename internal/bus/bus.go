package bus

import "log/slog"

// Bus pairs the control-event channel (endpoint → executor) with the
// status-event channel (executor → endpoint), the two broadcast channels
// the engine's data flow moves along.
type Bus struct {
	Control *Broadcaster[ControlEvent]
	Status  *Broadcaster[StatusEvent]
}

func New(log *slog.Logger) *Bus {
	return &Bus{
		Control: NewBroadcaster[ControlEvent]("control", log),
		Status:  NewBroadcaster[StatusEvent]("status", log),
	}
}

func (b *Bus) Close() {
	b.Control.Close()
	b.Status.Close()
}
