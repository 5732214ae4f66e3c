package literecord

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Patch performs a partial update of the record with id: the stored row is
// read, partial is merged over it, and the result is validated and written
// back. Only declared, non-key attributes may be patched.
//
// Read and write share one transaction: the caller's when the context
// carries one, otherwise a transaction owned by Patch.
func (s *Store) Patch(ctx context.Context, id any, partial map[string]any) (*Record, error) {
	for attr := range partial {
		if !s.schema.HasAttribute(attr) || containsString(s.schema.ID, attr) {
			return nil, fmt.Errorf("%w: cannot patch attribute %q", ErrInvalidParams, attr)
		}
	}

	var tx *sqlx.Tx
	isExternalTx := false

	if externalTx, ok := GetTx(ctx); ok {
		tx = externalTx
		isExternalTx = true
	} else {
		newTx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, persistenceError("beginning patch transaction", err)
		}
		tx = newTx
		ctx = InjectTx(ctx, tx)

		defer func() {
			if rErr := newTx.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) {
				s.logger.Warn("rolling back patch", zap.Any("id", id), zap.Error(rErr))
			}
		}()
	}

	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, persistenceError(fmt.Sprintf("patching %s %v", s.schema.Name, id), sql.ErrNoRows)
	}
	if len(partial) == 0 {
		return current, nil
	}

	for attr, v := range partial {
		current.Set(attr, v)
	}
	updated, err := s.Update(ctx, current)
	if err != nil {
		return nil, err
	}

	if isExternalTx {
		return updated, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, persistenceError("committing patch", err)
	}
	return updated, nil
}
