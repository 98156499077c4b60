// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mdm/confidante/jid"
)

// schema is applied by EnsureSchema before a SQLBackend is used against a
// fresh database.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	bare_jid    TEXT PRIMARY KEY,
	argon2      TEXT NOT NULL DEFAULT '',
	scram_sha1  TEXT NOT NULL DEFAULT '',
	scram_sha256 TEXT NOT NULL DEFAULT ''
);`

// EnsureSchema creates the users table if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

// SQLBackend is a Backend over a database/sql connection pool, normally
// opened against the "sqlite3" driver.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend wraps db. Callers are expected to have already called
// EnsureSchema against it.
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

// columnFor maps kind to its fixed column name; it never takes untrusted
// input, so the result is safe to interpolate into a query string.
func columnFor(kind Kind) (string, error) {
	switch kind {
	case Argon2:
		return "argon2", nil
	case ScramSha1:
		return "scram_sha1", nil
	case ScramSha256:
		return "scram_sha256", nil
	default:
		return "", fmt.Errorf("store: unknown kind %d", kind)
	}
}

func (b *SQLBackend) AddUser(ctx context.Context, bareJID jid.JID, argon2, scramSha1, scramSha256 string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO users (bare_jid, argon2, scram_sha1, scram_sha256) VALUES (?, ?, ?, ?)
		ON CONFLICT(bare_jid) DO UPDATE SET argon2 = excluded.argon2, scram_sha1 = excluded.scram_sha1, scram_sha256 = excluded.scram_sha256
	`, bareJID.String(), argon2, scramSha1, scramSha256)
	return err
}

func (b *SQLBackend) RemoveUser(ctx context.Context, bareJID jid.JID) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM users WHERE bare_jid = ?`, bareJID.String())
	return err
}

func (b *SQLBackend) GetStoredPassword(ctx context.Context, bareJID jid.JID, kind Kind) (string, error) {
	col, err := columnFor(kind)
	if err != nil {
		return "", err
	}
	var value string
	row := b.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM users WHERE bare_jid = ?`, col), bareJID.String())
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNoSuchUser
		}
		return "", err
	}
	if value == "" {
		return "", ErrNoSuchUser
	}
	return value, nil
}

func (b *SQLBackend) SetStoredPassword(ctx context.Context, bareJID jid.JID, kind Kind, value string) error {
	col, err := columnFor(kind)
	if err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx, fmt.Sprintf(`UPDATE users SET %s = ? WHERE bare_jid = ?`, col), value, bareJID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoSuchUser
	}
	return nil
}
