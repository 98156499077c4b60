// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Command confidante runs the client-facing XMPP endpoint: accepting inbound
// TCP connections, negotiating STARTTLS/SASL/resource binding, and routing
// stanzas through a process-wide router. It also doubles as the
// administrative tool for managing stored user credentials.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mdm/confidante/config"
	"github.com/mdm/confidante/conn"
	"github.com/mdm/confidante/credential"
	"github.com/mdm/confidante/engine"
	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/router"
	"github.com/mdm/confidante/sasl"
	"github.com/mdm/confidante/store"
)

// traceDir is where Debug-wrapped connections tee their traffic.
const traceDir = "traces"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "confidante",
		Short:         "An XMPP client-facing endpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose development logging and connection tracing")
	root.AddCommand(newAddUserCmd(), newRemoveUserCmd())
	return root
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildTLSConfig reads the configured certificate chain and private key off
// disk and hands them to conn.NewTLSConfig, rooting client certificate
// verification at the OS trust store the way settings.rs's
// WebPkiClientVerifier did.
func buildTLSConfig(t config.TLS) (*tls.Config, error) {
	certPEM, err := os.ReadFile(t.CertificateChain)
	if err != nil {
		return nil, fmt.Errorf("confidante: reading certificate chain: %w", err)
	}
	keyPEM, err := os.ReadFile(t.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("confidante: reading private key: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("confidante: loading system cert pool: %w", err)
	}
	return conn.NewTLSConfig(certPEM, keyPEM, pool)
}

func openStore(settings config.Settings) (*store.SQLBackend, *sql.DB, error) {
	db, err := sql.Open("sqlite3", settings.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("confidante: opening database: %w", err)
	}
	if err := store.EnsureSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("confidante: ensuring schema: %w", err)
	}
	return store.NewSQLBackend(db), db, nil
}

// serve loads configuration, wires the router/store/SASL stack together, and
// accepts connections until ctx is canceled.
func serve(ctx context.Context, debug bool) error {
	log, err := newLogger(debug)
	if err != nil {
		return fmt.Errorf("confidante: building logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("confidante: loading configuration: %w", err)
	}

	tlsConfig, err := buildTLSConfig(settings.TLS)
	if err != nil {
		return err
	}

	backend, db, err := openStore(settings)
	if err != nil {
		return err
	}
	defer db.Close()

	routerHandle := router.NewHandle(ctx, log)
	storeHandle := store.NewHandle(ctx, backend, log)
	lookup := credential.NewStoreLookup(ctx, settings.Domain.String(), storeHandle)
	saslDriver := sasl.NewDriver(settings.Domain.String(), lookup)

	if debug {
		if err := os.MkdirAll(traceDir, 0o755); err != nil {
			return fmt.Errorf("confidante: creating trace directory: %w", err)
		}
	}

	listener, err := net.Listen("tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("confidante: listening on %s: %w", settings.ListenAddress, err)
	}
	defer listener.Close()
	log.Info("listening", zap.String("addr", settings.ListenAddress))

	engineSettings := engine.Settings{
		ConnectionType: engine.ConnectionTypeClient,
		Domain:         settings.Domain,
		TLSRequired:    settings.TLS.RequiredForClients,
		TLSConfig:      tlsConfig,
	}

	for {
		rawConn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Warn("accept failed", zap.Error(err))
			continue
		}

		go acceptConnection(ctx, rawConn, routerHandle, saslDriver, engineSettings, log, debug)
	}
}

func acceptConnection(
	ctx context.Context,
	rawConn net.Conn,
	routerHandle router.Handle,
	saslDriver *sasl.Driver,
	settings engine.Settings,
	log *zap.Logger,
	debug bool,
) {
	var nc net.Conn = rawConn
	if debug {
		dbg, err := conn.NewDebug(rawConn, traceDir)
		if err != nil {
			log.Warn("failed to open connection trace", zap.Error(err))
		} else {
			nc = dbg
			log.Info("new connection", zap.String("trace_id", dbg.ID().String()))
		}
	}

	c := conn.New(nc, true)
	inbound := engine.New(c, routerHandle, saslDriver, settings, log)
	inbound.Handle(ctx)
}

func newAddUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-user <bare-jid> <password>",
		Short: "Register a user and derive its stored credential entries.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addUser(cmd.Context(), args[0], args[1])
		},
	}
}

func newRemoveUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-user <bare-jid>",
		Short: "Remove a user's stored credential entries.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return removeUser(cmd.Context(), args[0])
		},
	}
}

func addUser(ctx context.Context, bareJIDArg, password string) error {
	bareJID, err := jid.Parse(bareJIDArg)
	if err != nil {
		return fmt.Errorf("confidante: parsing bare jid: %w", err)
	}
	bareJID = bareJID.Bare()

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("confidante: loading configuration: %w", err)
	}

	backend, db, err := openStore(settings)
	if err != nil {
		return err
	}
	defer db.Close()

	argon2, err := credential.NewStoredPasswordArgon2(password)
	if err != nil {
		return fmt.Errorf("confidante: deriving argon2 entry: %w", err)
	}
	scramSha1, err := credential.NewStoredPasswordScram(credential.SHA1, password)
	if err != nil {
		return fmt.Errorf("confidante: deriving scram-sha-1 entry: %w", err)
	}
	scramSha256, err := credential.NewStoredPasswordScram(credential.SHA256, password)
	if err != nil {
		return fmt.Errorf("confidante: deriving scram-sha-256 entry: %w", err)
	}

	return backend.AddUser(ctx, bareJID, argon2.String(), scramSha1.String(), scramSha256.String())
}

func removeUser(ctx context.Context, bareJIDArg string) error {
	bareJID, err := jid.Parse(bareJIDArg)
	if err != nil {
		return fmt.Errorf("confidante: parsing bare jid: %w", err)
	}
	bareJID = bareJID.Bare()

	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("confidante: loading configuration: %w", err)
	}

	backend, db, err := openStore(settings)
	if err != nil {
		return err
	}
	defer db.Close()

	return backend.RemoveUser(ctx, bareJID)
}
