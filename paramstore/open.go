package paramstore

import (
	"context"
	"fmt"

	"github.com/thalesfsp/regtune/config"
)

// Open builds the store selected by cfg.Backend. The returned close function
// releases connections and is never nil.
func Open(ctx context.Context, cfg config.Cache) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path), noop, nil
	case "memory":
		return NewMemoryStore(Snapshot{}), noop, nil
	case "redis":
		client, err := DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, noop, err
		}

		return NewRedisStore(client, cfg.Redis.Key), client.Close, nil
	case "postgres":
		s, err := OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
		if err != nil {
			return nil, noop, err
		}

		return s, s.DB().Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
