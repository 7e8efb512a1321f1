package db

import "gorm.io/gorm"

// Schema is the Postgres schema every Lumra table lives in.
const Schema = "lumra"

func EnsureSchema(d *gorm.DB, schema string) error {
	return d.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error
}
