package literecord

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// txContextKey is a private key for storing the transaction in the context.
type txContextKey struct{}

// GetTx retrieves a transaction from the context, if one exists.
func GetTx(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sqlx.Tx)
	return tx, ok
}

// InjectTx returns a new context carrying tx. Stores use it for every
// statement run with that context; committing or rolling back stays with
// the caller.
func InjectTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// queryer is what a Store needs from either *sqlx.DB or *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	Rebind(query string) string
}

func (s *Store) conn(ctx context.Context) queryer {
	if tx, ok := GetTx(ctx); ok {
		return tx
	}
	return s.db
}
