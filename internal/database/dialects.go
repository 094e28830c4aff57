package database

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	sqliteMemoryDSN = "file::memory:?cache=shared&_foreign_keys=1"
	sqliteFileOpts  = "_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000"
)

// normalizeDriver maps configured driver names onto the three supported
// dialects. Unknown names are returned unchanged.
func normalizeDriver(name string) string {
	switch driver := strings.ToLower(strings.TrimSpace(name)); driver {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return driver
	}
}

func dialectorFor(driver string, cfg Config) (gorm.Dialector, error) {
	switch driver {
	case "sqlite":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		dsn, err := buildPostgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case "mysql":
		dsn, err := buildMySQLDSN(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// sqliteDSN resolves the DSN and creates the parent directory of a file
// database. An empty path or ":memory:" yields a shared in-memory database.
func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return sqliteMemoryDSN, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return "file:" + filepath.ToSlash(path) + "?" + sqliteFileOpts, nil
}

// buildMySQLDSN renders a go-sql-driver DSN. Sessions run in UTC with
// parseTime on so DATETIME columns scan into time.Time.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	dc := mysqldriver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	dc.DBName = cfg.Name
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	for key, value := range cfg.Options {
		dc.Params[key] = value
	}

	dsn := dc.FormatDSN()
	if _, err := mysqldriver.ParseDSN(dsn); err != nil {
		return "", fmt.Errorf("mysql options: %w", err)
	}
	return dsn, nil
}

// buildPostgresDSN renders a keyword/value connection string. Sessions are
// pinned to UTC because timestamps are compared across instances.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	settings := map[string]string{
		"host":     cfg.Host,
		"port":     strconv.Itoa(cfg.Port),
		"user":     cfg.User,
		"dbname":   cfg.Name,
		"sslmode":  "disable",
		"TimeZone": "UTC",
	}
	if cfg.Host == "" {
		settings["host"] = "localhost"
	}
	if cfg.Port == 0 {
		settings["port"] = "5432"
	}
	if cfg.Password != "" {
		settings["password"] = cfg.Password
	}
	for key, value := range cfg.Options {
		settings[key] = value
	}

	// Connection keys first, then the rest alphabetically.
	lead := []string{"host", "port", "user", "dbname", "password"}
	rest := make([]string, 0, len(settings))
	for key := range settings {
		if !slices.Contains(lead, key) {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)

	parts := make([]string, 0, len(settings))
	for _, key := range append(lead, rest...) {
		if value, ok := settings[key]; ok {
			parts = append(parts, key+"="+quotePostgresValue(value))
		}
	}
	dsn := strings.Join(parts, " ")

	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("postgres options: %w", err)
	}
	return dsn, nil
}

func quotePostgresValue(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}

