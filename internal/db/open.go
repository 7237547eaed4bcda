package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects either a local sqlite file (or ":memory:") or a remote libsql database.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// Open opens the configured database and applies Schema to it.
func Open(config Config) (*sql.DB, error) {
	var (
		sqldb *sql.DB
		err   error
	)
	switch {
	case config.Url != "":
		sqldb, err = openLibsql(config.Url, config.AuthToken)
	case config.File != "":
		sqldb, err = openSqlite(config.File)
	default:
		return nil, wrapOpenDB(fmt.Errorf("neither a file nor a url was specified"))
	}
	if err != nil {
		return nil, wrapOpenDB(err)
	}

	_, err = sqldb.Exec(Schema)
	if err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return sqldb, nil
}

func openSqlite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, err
		}
	}

	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// a single connection serializes writers, it also keeps ":memory:" pointing at
	// the same database for every query.
	// see: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	sqldb.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = sqldb.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return nil, err
		}
	}
	return sqldb, nil
}

func openLibsql(dbUrl, authToken string) (*sql.DB, error) {
	if authToken != "" {
		parsed, err := url.Parse(dbUrl)
		if err != nil {
			return nil, err
		}
		query := parsed.Query()
		query.Set("authToken", authToken)
		parsed.RawQuery = query.Encode()
		dbUrl = parsed.String()
	}
	return sql.Open("libsql", dbUrl)
}
