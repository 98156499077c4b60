// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package conn

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Debug wraps a net.Conn and tees both directions of traffic to a pair of
// append-only files named by a UUID, one per direction, so a captured
// session can be replayed for diagnosis. The UUID survives a TLS upgrade
// (see Conn.Upgrade): the post-upgrade Debug reuses the same files, so the
// plaintext preamble and the (now encrypted-on-the-wire, plaintext-here)
// application traffic land in one continuous trace per connection.
type Debug struct {
	net.Conn
	id     uuid.UUID
	rx, tx *os.File
}

// NewDebug creates a new Debug tee under dir, opening "<uuid>.rx" and
// "<uuid>.tx" for the read and write directions respectively.
func NewDebug(nc net.Conn, dir string) (*Debug, error) {
	id := uuid.New()
	rx, err := os.OpenFile(filepath.Join(dir, id.String()+".rx"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("conn: opening debug rx file: %w", err)
	}
	tx, err := os.OpenFile(filepath.Join(dir, id.String()+".tx"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		rx.Close()
		return nil, fmt.Errorf("conn: opening debug tx file: %w", err)
	}
	return &Debug{Conn: nc, id: id, rx: rx, tx: tx}, nil
}

// ID returns the UUID this trace is filed under.
func (d *Debug) ID() uuid.UUID { return d.id }

// Read reads from the wrapped connection, teeing any bytes read to the rx
// file before returning them to the caller.
func (d *Debug) Read(b []byte) (int, error) {
	n, err := d.Conn.Read(b)
	if n > 0 {
		d.rx.Write(b[:n])
	}
	return n, err
}

// Write tees b to the tx file, then writes it to the wrapped connection.
func (d *Debug) Write(b []byte) (int, error) {
	d.tx.Write(b)
	return d.Conn.Write(b)
}

// Close closes the trace files and the wrapped connection.
func (d *Debug) Close() error {
	d.rx.Close()
	d.tx.Close()
	return d.Conn.Close()
}

// rewrap returns a new Debug over nc (the post-upgrade channel) that
// continues teeing to this Debug's existing files under the same UUID.
func (d *Debug) rewrap(nc net.Conn) *Debug {
	return &Debug{Conn: nc, id: d.id, rx: d.rx, tx: d.tx}
}
