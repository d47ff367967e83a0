// Package ipc exposes the daemon's control surface on the D-Bus session
// bus, per spec §4.5/§6: methods for external clients, signals for
// notifications, with a fixed service name and object path.
package ipc

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/essmehdi/flowd/internal/bus"
	"github.com/essmehdi/flowd/internal/config"
	"github.com/essmehdi/flowd/internal/store"
)

const (
	serviceName   = "com.github.essmehdi.Flowd"
	objectPath    = dbus.ObjectPath("/com/github/essmehdi/Flowd")
	interfaceName = "com.github.essmehdi.Flowd"
)

// ConfigSource mirrors executor.ConfigSource; duplicated here rather than
// imported to keep this package free of a dependency on internal/executor.
type ConfigSource func() (config.Config, error)

// Server owns the session-bus connection and the exported object. Job
// snapshots cross the bus JSON-encoded: godbus's native struct marshaling
// does not handle the store.Job's optional pointer fields cleanly, and
// spec.md does not pin a wire representation for "list of job snapshots".
type Server struct {
	conn      *dbus.Conn
	store     *store.Store
	cfgSource ConfigSource
	control   *bus.Broadcaster[bus.ControlEvent]
	log       *slog.Logger
}

// object holds the Go methods that methodTable binds to the exported
// snake_case names; kept separate from Server so Server's own helper
// methods stay off the bus surface.
type object struct {
	srv *Server
}

// Connect claims serviceName on the session bus and registers the object
// and its introspection data. The returned Server must be closed by the
// caller on shutdown.
func Connect(st *store.Store, b *bus.Bus, cfgSource ConfigSource, log *slog.Logger) (*Server, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}

	s := &Server{conn: conn, store: st, cfgSource: cfgSource, control: b.Control, log: log}

	reply, err := conn.RequestName(serviceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, errNameTaken
	}

	if err := conn.ExportMethodTable(methodTable(&object{srv: s}), objectPath, interfaceName); err != nil {
		conn.Close()
		return nil, err
	}

	if err := conn.Export(introspect.NewIntrospectable(introspectionNode()), objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

// methodTable binds the snake_case method names spec §6 pins (matching the
// original's #[dbus_interface] member names exactly) to o's Go methods.
// conn.Export would instead advertise the Go names (Status,
// GetAllDownloads, ...), which no real client speaks.
func methodTable(o *object) map[string]interface{} {
	return map[string]interface{}{
		"status":                            o.Status,
		"get_all_downloads":                 o.GetAllDownloads,
		"get_downloads_by_completed_status": o.GetDownloadsByCompletedStatus,
		"get_downloads_by_category":         o.GetDownloadsByCategory,
		"get_sorted_downloads":              o.GetSortedDownloads,
		"new_download_wait_confirm":         o.NewDownloadWaitConfirm,
		"new_download_confirmed":            o.NewDownloadConfirmed,
		"pause_download":                    o.PauseDownload,
		"resume_download":                   o.ResumeDownload,
		"restart_download":                  o.RestartDownload,
		"cancel_download":                   o.CancelDownload,
		"delete_download":                   o.DeleteDownload,
		"change_output_file_path":           o.ChangeOutputFilePath,
		"confirm_download_data":             o.ConfirmDownloadData,
	}
}

// introspectionNode describes the same snake_case method table by hand:
// introspect.Methods(o) would reflect o's Go method names instead.
func introspectionNode() *introspect.Node {
	str := func(name string) introspect.Arg { return introspect.Arg{Name: name, Type: "s", Direction: "in"} }
	outStrList := introspect.Arg{Name: "downloads", Type: "as", Direction: "out"}
	outStr := introspect.Arg{Name: "result", Type: "s", Direction: "out"}
	id := introspect.Arg{Name: "id", Type: "x", Direction: "in"}

	return &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: interfaceName,
				Methods: []introspect.Method{
					{Name: "status", Args: []introspect.Arg{outStr}},
					{Name: "get_all_downloads", Args: []introspect.Arg{outStrList}},
					{Name: "get_downloads_by_completed_status", Args: []introspect.Arg{
						{Name: "completed", Type: "b", Direction: "in"}, outStrList,
					}},
					{Name: "get_downloads_by_category", Args: []introspect.Arg{str("category"), outStrList}},
					{Name: "get_sorted_downloads", Args: []introspect.Arg{outStrList}},
					{Name: "new_download_wait_confirm", Args: []introspect.Arg{str("url"), outStr}},
					{Name: "new_download_confirmed", Args: []introspect.Arg{str("url"), outStr}},
					{Name: "pause_download", Args: []introspect.Arg{id, outStr}},
					{Name: "resume_download", Args: []introspect.Arg{id, outStr}},
					{Name: "restart_download", Args: []introspect.Arg{id, outStr}},
					{Name: "cancel_download", Args: []introspect.Arg{id, outStr}},
					{Name: "delete_download", Args: []introspect.Arg{id, outStr}},
					{Name: "change_output_file_path", Args: []introspect.Arg{
						id, {Name: "new_path", Type: "s", Direction: "in"}, outStr,
					}},
					{Name: "confirm_download_data", Args: []introspect.Arg{id, outStr}},
				},
				Signals: []introspect.Signal{
					{Name: "notify_download_update", Args: []introspect.Arg{{Name: "job", Type: "s", Direction: "out"}}},
					{Name: "notify_download_progress", Args: []introspect.Arg{
						{Name: "id", Type: "x", Direction: "out"},
						{Name: "done", Type: "x", Direction: "out"},
						{Name: "total", Type: "x", Direction: "out"},
					}},
					{Name: "notify_download_delete", Args: []introspect.Arg{{Name: "id", Type: "x", Direction: "out"}}},
					{Name: "notify_download_error", Args: []introspect.Arg{
						{Name: "id", Type: "x", Direction: "out"},
						{Name: "message", Type: "s", Direction: "out"},
					}},
				},
			},
		},
	}
}

func (s *Server) Close() error {
	_, _ = s.conn.ReleaseName(serviceName)
	return s.conn.Close()
}

// RelayStatusEvents drains statusEvents into signal emissions until the
// channel closes or ctx is done, per spec §4.5's "one background task
// draining status events into signal emissions".
func (s *Server) RelayStatusEvents(ctx context.Context, statusEvents <-chan bus.StatusEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-statusEvents:
			if !ok {
				return
			}
			s.emit(event)
		}
	}
}

func (s *Server) emit(event bus.StatusEvent) {
	var err error
	switch ev := event.(type) {
	case bus.Update:
		payload, marshalErr := json.Marshal(ev.Job)
		if marshalErr != nil {
			s.log.Warn("ipc: failed to marshal job for update signal", "id", ev.Job.ID, "error", marshalErr)
			return
		}
		err = s.conn.Emit(objectPath, interfaceName+".notify_download_update", string(payload))
	case bus.Progress:
		err = s.conn.Emit(objectPath, interfaceName+".notify_download_progress", ev.ID, ev.BytesDone, ev.ContentLength)
	case bus.JobDeleted:
		err = s.conn.Emit(objectPath, interfaceName+".notify_download_delete", ev.ID)
	case bus.Error:
		id := int64(0)
		if ev.ID != nil {
			id = *ev.ID
		}
		err = s.conn.Emit(objectPath, interfaceName+".notify_download_error", id, ev.Message)
	}
	if err != nil {
		s.log.Warn("ipc: failed to emit signal", "error", err)
	}
}

func (s *Server) publishControl(event bus.ControlEvent) string {
	if err := s.control.Publish(event); err != nil {
		s.log.Warn("ipc: failed to publish control event", "error", err)
		return "ERROR"
	}
	return "OK"
}

func marshalJobs(jobs []store.Job, err error) ([]string, *dbus.Error) {
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		encoded, marshalErr := json.Marshal(j)
		if marshalErr != nil {
			return nil, dbus.MakeFailedError(marshalErr)
		}
		out = append(out, string(encoded))
	}
	return out, nil
}

var errNameTaken = dbus.MakeFailedError(errServiceNameTaken{})

type errServiceNameTaken struct{}

func (errServiceNameTaken) Error() string { return "service name already owned on session bus" }
