package db

import (
	"context"
	"database/sql"
	"errors"
)

// MakeTx is a function that creates a db transaction, discard is safe to call after commit.
type MakeTx = func(ctx context.Context) (tx *Queries, discard, commit func() error, err error)

func NewMakeTx(dbtx *sql.DB) MakeTx {
	return func(ctx context.Context) (tx *Queries, discard, commit func() error, err error) {
		sqltx, err := dbtx.BeginTx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		txqry := New(sqltx)
		return txqry,
			func() error {
				err := sqltx.Rollback()
				if errors.Is(err, sql.ErrTxDone) {
					return nil
				}
				return err
			},
			func() error {
				return sqltx.Commit()
			},
			nil
	}
}
