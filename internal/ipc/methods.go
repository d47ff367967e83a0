package ipc

import (
	"github.com/godbus/dbus/v5"

	"github.com/essmehdi/flowd/internal/bus"
)

// Status answers the `status` method, per spec §6.
func (o *object) Status() (string, *dbus.Error) {
	return "UP", nil
}

func (o *object) GetAllDownloads() ([]string, *dbus.Error) {
	return marshalJobs(o.srv.store.GetAll())
}

func (o *object) GetDownloadsByCompletedStatus(completed bool) ([]string, *dbus.Error) {
	return marshalJobs(o.srv.store.GetCompletedPartition(completed))
}

func (o *object) GetDownloadsByCategory(category string) ([]string, *dbus.Error) {
	cfg, err := o.srv.cfgSource()
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	cat, ok := cfg.Categories[category]
	if !ok {
		return []string{}, nil
	}
	return marshalJobs(o.srv.store.GetByCategory(cat.Extensions))
}

func (o *object) GetSortedDownloads() ([]string, *dbus.Error) {
	return marshalJobs(o.srv.store.GetSorted())
}

func (o *object) NewDownloadWaitConfirm(url string) (string, *dbus.Error) {
	return o.srv.publishControl(bus.NewDownload{URL: url, Confirmed: false}), nil
}

func (o *object) NewDownloadConfirmed(url string) (string, *dbus.Error) {
	return o.srv.publishControl(bus.NewDownload{URL: url, Confirmed: true}), nil
}

func (o *object) PauseDownload(id int64) (string, *dbus.Error) {
	return o.srv.publishControl(bus.Pause{ID: id}), nil
}

func (o *object) ResumeDownload(id int64) (string, *dbus.Error) {
	return o.srv.publishControl(bus.Resume{ID: id}), nil
}

func (o *object) RestartDownload(id int64) (string, *dbus.Error) {
	return o.srv.publishControl(bus.Restart{ID: id}), nil
}

func (o *object) CancelDownload(id int64) (string, *dbus.Error) {
	return o.srv.publishControl(bus.Cancel{ID: id}), nil
}

func (o *object) DeleteDownload(id int64) (string, *dbus.Error) {
	return o.srv.publishControl(bus.Delete{ID: id}), nil
}

// ChangeOutputFilePath writes the store directly rather than going through
// the control bus. It returns "OK" on success; an unknown id or a storage
// failure comes back as a D-Bus error. The new path has no effect on the
// transfer state machine until the job is next resolved.
func (o *object) ChangeOutputFilePath(id int64, newPath string) (string, *dbus.Error) {
	if err := o.srv.store.SetOutputFile(id, newPath); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return "OK", nil
}

func (o *object) ConfirmDownloadData(id int64) (string, *dbus.Error) {
	if err := o.srv.store.SetDataConfirmed(id); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return "OK", nil
}
