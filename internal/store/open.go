package store

import (
	"context"
	"fmt"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
)

// Open returns the backend selected by cfg.Driver ("sqlite" or "postgres").
func Open(ctx context.Context, cfg model.BackendConfig) (Backend, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "pgx":
		s, err := NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
