package repository

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/rimborsami/rimborsami/internal/domain"
)

const (
	defaultSQLitePath   = "./rimborsami.db"
	defaultPostgresDB   = "rimborsami"
	defaultPostgresHost = "localhost"
	defaultPostgresPort = 5432
	pingTimeout         = 5 * time.Second
)

// sqlitePragmas are applied to every SQLite connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// open connects to the configured database and verifies the connection.
func open(cfg domain.RepositoryConfig) (*sql.DB, error) {
	driverName, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		if err := ensureDir(sqlitePath(cfg)); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s database", cfg.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "ping %s database", cfg.Driver)
	}
	return db, nil
}

// dataSource returns the database/sql driver name and DSN for cfg.
func dataSource(cfg domain.RepositoryConfig) (string, string, error) {
	switch cfg.Driver {
	case "sqlite":
		return "sqlite", sqliteDSN(sqlitePath(cfg)), nil
	case "postgres":
		return "postgres", postgresDSN(cfg), nil
	default:
		return "", "", eris.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

func sqlitePath(cfg domain.RepositoryConfig) string {
	if cfg.SQLitePath == "" {
		return defaultSQLitePath
	}
	return cfg.SQLitePath
}

// sqliteDSN builds a modernc.org/sqlite file URI with the connection pragmas.
func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// postgresDSN builds a lib/pq URL. Credentials are escaped, so passwords
// may contain spaces or '@'.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = defaultPostgresHost
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = defaultPostgresPort
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = defaultPostgresDB
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + dbname,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if cfg.PostgresUser != "" {
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	}
	return u.String()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create database directory %s", dir)
	}
	return nil
}
