package main

import (
	"bufio"
	_ "embed"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/config"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/logging"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/service"
)

//go:embed persons.sql
var defaultSchema string

// Usage example on the command line:
// > DBHOST=localhost DBUSER=dirk DBPWD=bullo92 go run . -file=persons.sql
func main() {
	configPtr := flag.String("config", "", "the YAML configuration file")
	filePtr := flag.String("file", "", "the sql file to execute, the built-in persons table if empty")
	flag.Parse()

	cfg, err := config.Load(*configPtr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	var script io.Reader = strings.NewReader(defaultSchema)
	if *filePtr != "" {
		readFile, err := os.Open(*filePtr) // nosemgrep
		if err != nil {
			logger.Error("could not open sql file", "file", *filePtr, "error", err)
			os.Exit(1)
		}
		defer readFile.Close()
		script = readFile
	}
	statements, err := splitStatements(script)
	if err != nil {
		logger.Error("could not read sql file", "error", err)
		os.Exit(1)
	}

	sqlDB, err := service.CreateDatabase(cfg.Database)
	if err != nil {
		logger.Error("could not open database", "error", err)
		os.Exit(1)
	}
	db := sqlx.NewDb(sqlDB, cfg.Database.Driver)
	defer db.Close()

	if err := execute(db, statements, logger); err != nil {
		logger.Error("schema not applied", "error", err)
		os.Exit(1)
	}
}

// splitStatements collects the lines of an sql script into statements, each ending with the line
// that contains a semicolon. Comment lines are skipped.
func splitStatements(r io.Reader) ([]string, error) {
	var statements []string
	fileScanner := bufio.NewScanner(r)
	fileScanner.Split(bufio.ScanLines)
	builder := strings.Builder{}
	for fileScanner.Scan() {
		line := strings.TrimSpace(fileScanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		builder.WriteString(line)
		builder.WriteString(" ")
		if strings.Contains(line, ";") {
			statements = append(statements, strings.TrimSpace(builder.String()))
			builder = strings.Builder{}
		}
	}
	if err := fileScanner.Err(); err != nil {
		return nil, err
	}
	if rest := strings.TrimSpace(builder.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements, nil
}

// execute runs the statements one after the other and stops at the first failure.
func execute(db *sqlx.DB, statements []string, logger *slog.Logger) error {
	for i, sql := range statements {
		if _, err := db.Exec(sql); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
		logger.Debug("statement executed", "number", i+1)
	}
	logger.Info("schema applied", "statements", len(statements))
	return nil
}
