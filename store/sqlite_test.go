// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/store"
)

func TestSQLBackendAddUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := mustJID(t, "juliet@example.com")
	mock.ExpectExec("INSERT INTO users").
		WithArgs(j.String(), "argonhash", "scram1", "scram256").
		WillReturnResult(sqlmock.NewResult(1, 1))

	backend := store.NewSQLBackend(db)
	err = backend.AddUser(context.Background(), j, "argonhash", "scram1", "scram256")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendRemoveUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := mustJID(t, "juliet@example.com")
	mock.ExpectExec("DELETE FROM users").
		WithArgs(j.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	backend := store.NewSQLBackend(db)
	err = backend.RemoveUser(context.Background(), j)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendGetStoredPasswordFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := mustJID(t, "juliet@example.com")
	rows := sqlmock.NewRows([]string{"scram_sha256"}).AddRow("storedvalue")
	mock.ExpectQuery("SELECT scram_sha256 FROM users").
		WithArgs(j.String()).
		WillReturnRows(rows)

	backend := store.NewSQLBackend(db)
	value, err := backend.GetStoredPassword(context.Background(), j, store.ScramSha256)
	require.NoError(t, err)
	assert.Equal(t, "storedvalue", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendGetStoredPasswordNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := mustJID(t, "juliet@example.com")
	mock.ExpectQuery("SELECT argon2 FROM users").
		WithArgs(j.String()).
		WillReturnError(sql.ErrNoRows)

	backend := store.NewSQLBackend(db)
	_, err = backend.GetStoredPassword(context.Background(), j, store.Argon2)
	assert.True(t, errors.Is(err, store.ErrNoSuchUser))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendSetStoredPasswordUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := mustJID(t, "juliet@example.com")
	mock.ExpectExec("UPDATE users SET scram_sha1").
		WithArgs("newvalue", j.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	backend := store.NewSQLBackend(db)
	err = backend.SetStoredPassword(context.Background(), j, store.ScramSha1, "newvalue")
	assert.True(t, errors.Is(err, store.ErrNoSuchUser))
	assert.NoError(t, mock.ExpectationsWereMet())
}
