package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gitlab.com/dirk.krummacker/qrinfo-service/internal/auth"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/config"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/logging"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/qr"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/registry"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/store"
)

// Usage examples on the command line:
// > ADMIN_PASSWORD=adminadmin go run . list
// > STORAGE_BACKEND=local STORAGE_PATH=/tmp/qrinfo.db go run . -password=adminadmin add -name=Erika -last-name=Mustermann -personal-code=PC1 -phone="+49 0815 4711"
// > go run . qr 1704067200000-ab12cd34 -out=erika.png
func main() {
	configPtr := flag.String("config", "", "the YAML configuration file")
	passwordPtr := flag.String("password", "", "the admin password, ADMIN_PASSWORD if empty")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <command> [arguments]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), commandHelp)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPtr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	password := *passwordPtr
	if password == "" {
		password = cfg.Admin.Password
	}
	ctx := context.Background()
	gate, err := adminGate(ctx, cfg, password)
	if err != nil {
		logger.Error("could not verify the password", "error", err)
		os.Exit(1)
	}
	session := gate.NewSession()
	if password != "" && !session.Login(password) {
		fmt.Fprintln(os.Stderr, "Incorrect password")
		os.Exit(1)
	}
	s, closeStore, err := openStore(cfg, session, logger)
	if err != nil {
		logger.Error("could not open record store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}

	c := &cli{
		registry: registry.New(s, session),
		qr:       qr.Generator{BaseURL: cfg.Public.BaseURL},
		out:      os.Stdout,
		now:      time.Now,
	}
	err = c.run(ctx, flag.Args())
	closeStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

// adminGate returns the gate that decides about admin access. For the remote backend a password
// the local configuration does not know is verified by the server.
func adminGate(ctx context.Context, cfg *config.Config, password string) (*auth.Gate, error) {
	gate := auth.NewGate(cfg.Admin.Password)
	if cfg.Storage.Backend != config.BackendRemote || password == "" || gate.Check(password) {
		return gate, nil
	}
	ok, err := store.NewRemoteStore(cfg.Storage.RemoteURL).VerifyPassword(ctx, password)
	if err != nil {
		return nil, err
	}
	if ok {
		gate = auth.NewGate(password)
	}
	return gate, nil
}

// openStore builds the configured backend. The remote backend sends the password of the session
// on mutating requests.
func openStore(cfg *config.Config, session *auth.Session, logger *slog.Logger) (store.Store, func() error, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		medium, err := store.OpenSQLiteMediumWithLogger(cfg.Storage.LocalPath, logger)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewLocalStore(medium,
			store.WithNamespace(cfg.Storage.Namespace),
			store.WithLocalLogger(logger),
		)
		return s, medium.Close, nil
	default:
		s := store.NewRemoteStore(cfg.Storage.RemoteURL,
			store.WithSession(session),
			store.WithRemoteLogger(logger),
		)
		return s, func() error { return nil }, nil
	}
}
