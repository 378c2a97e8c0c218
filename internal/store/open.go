package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Open returns a store for the named driver. dsn is a file path for
// "sqlite", a connection string for "postgres", a redis://host:port/db URL
// for "redis", and ignored for "memory".
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return OpenSQLite(dsn, opts...)
	case "postgres", "postgresql":
		return OpenPostgres(dsn, opts...)
	case "redis":
		addr, password, db, err := parseRedisDSN(dsn)
		if err != nil {
			return nil, err
		}
		return OpenRedis(ctx, addr, password, db, opts...)
	case "memory":
		return NewMemory(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func parseRedisDSN(dsn string) (addr, password string, db int, err error) {
	if !strings.Contains(dsn, "://") {
		return dsn, "", 0, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid redis dsn: %w", err)
	}
	if pw, ok := u.User.Password(); ok {
		password = pw
	}
	if path := strings.Trim(u.Path, "/"); path != "" {
		db, err = strconv.Atoi(path)
		if err != nil {
			return "", "", 0, fmt.Errorf("invalid redis db %q", path)
		}
	}
	return u.Host, password, db, nil
}
