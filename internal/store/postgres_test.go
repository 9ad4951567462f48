package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRowRejection(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type bigint"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server reported sqlstate", pgErr, true},
		{"wrapped sqlstate", fmt.Errorf("upsert row: %w", pgErr), true},
		{"dns failure", errors.New("failed to connect to `host=db`: hostname resolving error (lookup db: no such host)"), false},
		{"dial timeout", errors.New("failed to connect to `host=db`: dial error (dial tcp 10.0.0.9:5432: i/o timeout)"), false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), false},
		{"unexpected eof", errors.New("unexpected EOF"), false},
		{"closed pool", errors.New("closed pool"), false},
		{"context canceled", context.Canceled, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRowRejection(tc.err))
		})
	}
}
