package save

import (
	"context"
	"log/slog"

	"idleforge/internal/db"
)

type OpenOptions struct {
	DatabaseURL string
	Schema      string
	Dir         string
	MaxConns    int32
}

// Open picks the Postgres store when a database url is set and the file
// store otherwise. The returned close func is always non-nil.
func Open(ctx context.Context, opts OpenOptions, logger *slog.Logger) (Store, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DatabaseURL == "" {
		fs, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("using file save store", "dir", fs.dir)
		return fs, func() {}, nil
	}

	pool, err := db.Connect(ctx, opts.DatabaseURL, db.PoolOptions{MaxConns: opts.MaxConns})
	if err != nil {
		return nil, func() {}, err
	}
	pg := NewPGStore(pool, opts.Schema)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, func() {}, err
	}
	logger.Info("using postgres save store", "schema", opts.Schema)
	return pg, pool.Close, nil
}
