package db

import "gorm.io/gorm"

// RowLock returns the row-locking suffix for raw queries. Dialects without
// FOR UPDATE support return an empty suffix; sqlite already serializes
// writers at the connection level.
func RowLock(tx *gorm.DB) string {
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE"
	default:
		return ""
	}
}
