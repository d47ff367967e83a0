// Package bus is the in-process broadcast layer carrying control events from
// the IPC endpoint into the executor, and status events back out again, per
// spec §4.2.
package bus

import "github.com/essmehdi/flowd/internal/store"

// ControlEvent is published by the IPC endpoint and consumed by the
// executor's control loop.
type ControlEvent interface {
	isControlEvent()
}

// NewDownload requests a fresh job for url. confirmed seeds data_confirmed.
type NewDownload struct {
	URL       string
	Confirmed bool
}

func (NewDownload) isControlEvent() {}

// Pause requests an in-flight transfer stop at the next chunk boundary.
type Pause struct{ ID int64 }

func (Pause) isControlEvent() {}

// Resume moves a Paused job back to Pending for the admission controller.
type Resume struct{ ID int64 }

func (Resume) isControlEvent() {}

// Restart empties the scratch file of an idle job and moves it to Pending.
type Restart struct{ ID int64 }

func (Restart) isControlEvent() {}

// Cancel requests an in-flight transfer stop and truncate its scratch file,
// or does so directly for a job that isn't in flight.
type Cancel struct{ ID int64 }

func (Cancel) isControlEvent() {}

// Delete removes an idle or completed job from the store.
type Delete struct{ ID int64 }

func (Delete) isControlEvent() {}

// StatusEvent is published by the executor and relayed by the IPC endpoint
// as outbound notifications.
type StatusEvent interface {
	isStatusEvent()
}

// Progress reports bytes transferred so far for a job still streaming.
type Progress struct {
	ID            int64
	BytesDone     int64
	ContentLength int64
}

func (Progress) isStatusEvent() {}

// Update carries a full job snapshot after any field changes.
type Update struct {
	Job store.Job
}

func (Update) isStatusEvent() {}

// JobDeleted announces a job's removal from the store.
type JobDeleted struct{ ID int64 }

func (JobDeleted) isStatusEvent() {}

// Error reports a non-fatal failure. ID is nil for errors not tied to a
// specific job.
type Error struct {
	ID      *int64
	Message string
}

func (Error) isStatusEvent() {}
