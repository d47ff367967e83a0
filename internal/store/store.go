// Package store is the durable job catalog: schema-versioned SQLite storage
// behind a small set of typed queries, grounded on the gorm+glebarez/sqlite
// combination the rest of this codebase's lineage already tests against.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is a keyed collection of jobs. Every operation opens/uses a pooled
// connection; the store itself holds no in-memory job state.
type Store struct {
	db *gorm.DB
}

// Open creates the database file (and its parent directory) if absent and
// applies any pending migrations. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, storageErr("create db directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, storageErr("open database", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("close database", err)
	}
	return sqlDB.Close()
}

// Insert assigns the job its id and persists it.
func (s *Store) Insert(j *Job) (int64, error) {
	if err := s.db.Create(j).Error; err != nil {
		return 0, storageErr("insert job", err)
	}
	return j.ID, nil
}

// Update writes every field of j back to its row.
func (s *Store) Update(j *Job) error {
	res := s.db.Model(&Job{}).Where("id = ?", j.ID).Select("*").Updates(j)
	if res.Error != nil {
		return storageErr("update job", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus writes only the status column, the hot path for transfer
// state transitions.
func (s *Store) UpdateStatus(id int64, status Status) error {
	res := s.db.Model(&Job{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return storageErr("update status", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a job's row. Callers are responsible for only deleting idle
// or completed jobs.
func (s *Store) Delete(id int64) error {
	res := s.db.Unscoped().Delete(&Job{}, id)
	if res.Error != nil {
		return storageErr("delete job", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID looks up a single job. Returns ErrNotFound for an unknown id.
func (s *Store) GetByID(id int64) (Job, error) {
	var j Job
	err := s.db.First(&j, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, storageErr("get job", err)
	}
	return j, nil
}

// GetAll returns every job, unordered.
func (s *Store) GetAll() ([]Job, error) {
	var jobs []Job
	if err := s.db.Find(&jobs).Error; err != nil {
		return nil, storageErr("list jobs", err)
	}
	return jobs, nil
}

// GetByStatus returns jobs with the exact given status.
func (s *Store) GetByStatus(status Status) ([]Job, error) {
	var jobs []Job
	if err := s.db.Where("status = ?", status).Find(&jobs).Error; err != nil {
		return nil, storageErr("list jobs by status", err)
	}
	return jobs, nil
}

// GetCompletedPartition returns completed jobs when completed is true,
// every other job otherwise.
func (s *Store) GetCompletedPartition(completed bool) ([]Job, error) {
	var jobs []Job
	q := s.db.Model(&Job{})
	if completed {
		q = q.Where("status = ?", StatusCompleted)
	} else {
		q = q.Where("status <> ?", StatusCompleted)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, storageErr("list jobs by completion", err)
	}
	return jobs, nil
}

// GetPending returns jobs the admission controller may promote.
func (s *Store) GetPending() ([]Job, error) {
	return s.GetByStatus(StatusPending)
}

// CountInProgress returns the number of jobs currently occupying a slot.
func (s *Store) CountInProgress() (int64, error) {
	var n int64
	if err := s.db.Model(&Job{}).Where("status = ?", StatusInProgress).Count(&n).Error; err != nil {
		return 0, storageErr("count in-progress jobs", err)
	}
	return n, nil
}

// GetByCategory returns jobs whose known output file name ends with one of
// the given extensions.
func (s *Store) GetByCategory(extensions []string) ([]Job, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	var matched []Job
	for _, j := range all {
		name := j.outputName()
		if name == "" {
			continue
		}
		for _, ext := range extensions {
			if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
				matched = append(matched, j)
				break
			}
		}
	}
	return matched, nil
}

// GetSorted returns every job ordered by (status bucket ascending,
// date_added descending) per spec §4.1.
func (s *Store) GetSorted() ([]Job, error) {
	var jobs []Job
	orderExpr := fmt.Sprintf(
		`CASE status
			WHEN '%s' THEN 1
			WHEN '%s' THEN 2
			WHEN '%s' THEN 3
			WHEN '%s' THEN 4
			WHEN '%s' THEN 6
			ELSE 5
		END ASC, date_added DESC`,
		StatusInProgress, StatusStarting, StatusPending, StatusPaused, StatusCompleted,
	)
	if err := s.db.Order(orderExpr).Find(&jobs).Error; err != nil {
		return nil, storageErr("list sorted jobs", err)
	}
	return jobs, nil
}

// SetOutputFile overrides a job's intended output path, per the
// change_output_file_path IPC method (spec §6).
func (s *Store) SetOutputFile(id int64, path string) error {
	res := s.db.Model(&Job{}).Where("id = ?", id).Update("output_file", path)
	if res.Error != nil {
		return storageErr("set output file", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDataConfirmed marks a job's data as confirmed, per the
// confirm_download_data IPC method (spec §6) and the §4.3 step 8 wait gate.
func (s *Store) SetDataConfirmed(id int64) error {
	res := s.db.Model(&Job{}).Where("id = ?", id).Update("data_confirmed", true)
	if res.Error != nil {
		return storageErr("set data confirmed", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByURL returns every job ever created for url, most recent first.
// Supplements the distilled query set with the history lookup the original
// implementation exposed internally.
func (s *Store) FindByURL(url string) ([]Job, error) {
	var jobs []Job
	if err := s.db.Where("url = ?", url).Order("date_added DESC").Find(&jobs).Error; err != nil {
		return nil, storageErr("find jobs by url", err)
	}
	return jobs, nil
}
