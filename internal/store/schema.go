package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS principals (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role     TEXT NOT NULL CHECK (role IN ('admin', 'teacher')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		student_id   TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		name       TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS qr_sessions (
		id         BIGSERIAL PRIMARY KEY,
		subject    TEXT NOT NULL REFERENCES subjects(name),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_active  BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id           TEXT PRIMARY KEY,
		student_id   TEXT NOT NULL REFERENCES students(student_id),
		student_name TEXT NOT NULL,
		subject      TEXT NOT NULL,
		date         DATE NOT NULL,
		recorded_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (student_id, subject, date)
	)`,
}

// Init creates the tables if they do not exist and seeds the default admin
// principal when the principals table is empty. Safe to run on every startup.
func (d *DB) Init(ctx context.Context, adminUsername, adminPassword string) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema init: %w", err)
		}
	}
	// Seed exactly one admin when none exists yet. The conditional insert keeps
	// concurrent startups from racing to a duplicate.
	_, err := d.Client.ExecContext(ctx, `
		INSERT INTO principals (username, password, role)
		SELECT $1, $2, 'admin'
		WHERE NOT EXISTS (SELECT 1 FROM principals)
		ON CONFLICT (username) DO NOTHING
	`, adminUsername, adminPassword)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
