package cmd

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// openDatabase connects to MySQL. DATE and DATETIME columns are scanned into
// time.Time, so parseTime is forced on whatever the DSN says.
func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	dsnCfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	dsnCfg.ParseTime = true
	if dsnCfg.Loc == nil {
		dsnCfg.Loc = time.UTC
	}

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openDatabaseFromEnv serves the maintenance commands, which only need
// MYSQL_DSN and not the full server configuration.
func openDatabaseFromEnv(ctx context.Context) (*sql.DB, error) {
	_ = godotenv.Load()

	dsn := strings.TrimSpace(os.Getenv("MYSQL_DSN"))
	if dsn == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	return openDatabase(ctx, dsn)
}
