package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	appErrors "github.com/credvault/credvault/pkg/errors"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// recordAudit logs the supplied entry while tolerating audit failures.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	_ = audit.Log(ctx, entry)
}

// nextSeq assigns the next public sequence number for the model's table.
// Sequences start at zero and must be computed inside the transaction that
// inserts the row. Under default isolation two concurrent registrations can
// still read the same maximum; the unique index on seq rejects the loser and
// seqConflict turns that rejection into a retryable error.
func nextSeq(tx *gorm.DB, model any) (int64, error) {
	var max int64
	if err := tx.Model(model).Select("COALESCE(MAX(seq), -1)").Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("assign sequence: %w", err)
	}
	return max + 1, nil
}

// seqConflict maps unique-constraint violations from a sequence-assigning
// insert to a retryable conflict. It returns nil for every other error so
// callers keep their own wrapping.
func seqConflict(err error) error {
	if isUniqueConstraintError(err) {
		return appErrors.ErrConflict.WithMessage("sequence assignment raced a concurrent write, retry the request")
	}
	return nil
}
