package store

import (
	"embed"
	"fmt"

	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrate reads the schema's user_version pragma and applies every pending
// migration script in ascending order inside one batch, then bumps the
// stored version. A fresh database reports version 0 and receives every
// script from 1.sql up.
func migrate(db *gorm.DB) error {
	var current int
	if err := db.Raw("PRAGMA user_version").Scan(&current).Error; err != nil {
		return storageErr("read schema version", err)
	}

	tx := db.Begin()
	if tx.Error != nil {
		return storageErr("begin migration batch", tx.Error)
	}
	defer tx.Rollback()

	applied := current
	for version := current + 1; ; version++ {
		name := fmt.Sprintf("migrations/%d.sql", version)
		script, err := migrationFS.ReadFile(name)
		if err != nil {
			break // no more scripts to apply
		}

		if err := tx.Exec(string(script)).Error; err != nil {
			return storageErr(fmt.Sprintf("apply migration %d", version), err)
		}
		applied = version
	}

	if applied == current {
		return nil
	}
	if err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", applied)).Error; err != nil {
		return storageErr("bump schema version", err)
	}
	if err := tx.Commit().Error; err != nil {
		return storageErr("commit migration batch", err)
	}
	return nil
}
