package storage

import (
	"context"
	"fmt"
)

// Supported store drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Options selects and configures a Store backend.
type Options struct {
	Driver        string
	Path          string // file and sqlite
	DSN           string // postgres
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open constructs the Store named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverFile, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("file store: path is required")
		}
		return NewFileStore(opts.Path), nil
	case DriverSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite store: path is required")
		}
		return NewSQLiteStore(ctx, opts.Path)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres store: dsn is required")
		}
		return NewPostgresStore(ctx, opts.DSN)
	case DriverRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis store: address is required")
		}
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
