package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type transactor interface {
	WithTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error
}

type leaseAcquirer interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context), bool, error)
}
