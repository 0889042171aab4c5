package db

import "gorm.io/gorm"

// ForUpdate returns the row lock suffix for raw SELECTs. SQLite serializes
// writers on the database file and has no row locks.
func ForUpdate(db *gorm.DB) string {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
