package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gitlab.com/dirk.krummacker/qrinfo-service/internal/auth"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/config"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/logging"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/service"
)

// Usage example on the command line:
// > PORT=8080 DBUSER=dirk DBPWD=bullo92 ADMIN_PASSWORD=adminadmin GIN_MODE=release GIN_LOGGING=OFF go run main.go
func main() {
	configPtr := flag.String("config", "", "the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPtr)
	if err == nil {
		err = cfg.RequireAdminPassword()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	sqlDB, err := service.CreateDatabase(cfg.Database)
	if err != nil {
		logger.Error("could not open database", "error", err)
		os.Exit(1)
	}
	svc, err := service.SetupDatabaseWrapper(sqlDB, service.Options{
		Driver:        cfg.Database.Driver,
		Gate:          auth.NewGate(cfg.Admin.Password),
		PublicBaseURL: cfg.Public.BaseURL,
		Logger:        logger,
		GinLogging:    cfg.Server.GinLogging,
	})
	if err != nil {
		logger.Error("could not prepare statements", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	router := svc.SetupHttpRouter()
	logger.Info("service listening", "addr", cfg.Server.Addr, "driver", cfg.Database.Driver)
	if err := router.Run(cfg.Server.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
