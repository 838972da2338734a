package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credvault/credvault/internal/database/testutil"
	"github.com/credvault/credvault/internal/models"
	"github.com/credvault/credvault/internal/services"
)

type fakePruner struct {
	cutoffs []time.Time
	removed int64
}

func (f *fakePruner) PruneUnbound(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.removed, nil
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	old := models.AuditLog{Action: "credential.create", Result: "success"}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Model(&old).Update("created_at", time.Now().AddDate(0, 0, -120)).Error)

	fresh := models.AuditLog{Action: "credential.verify", Result: "success"}
	require.NoError(t, db.Create(&fresh).Error)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	pruner := &fakePruner{removed: 3}
	cleaner := NewCleaner(audit, pruner,
		WithNow(func() time.Time { return now }),
		WithAuditRetentionDays(90),
		WithUnboundHandleTTL(6*time.Hour),
	)

	require.NoError(t, cleaner.RunOnce(context.Background()))

	var remaining int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, now.Add(-6*time.Hour), pruner.cutoffs[0])
}

func TestCleanerStartWithNothingConfigured(t *testing.T) {
	cleaner := NewCleaner(nil, nil)
	require.NoError(t, cleaner.Start())
	cleaner.Stop()
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	cleaner := NewCleaner(audit, &fakePruner{})
	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}
