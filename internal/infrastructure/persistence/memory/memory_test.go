package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpulse/adaptive-engine/internal/domain/curriculum"
	"github.com/learnpulse/adaptive-engine/internal/domain/performance"
	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

var storeKey = shared.Key{StudentID: "student-1", ModuleID: "statistics-101"}

func TestPlanStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPlanStore()

	_, err := store.Get(ctx, storeKey)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	plan := curriculum.NewPlan(storeKey, []string{"Probability Basics", "Covariance"}, curriculum.DifficultyIntermediate)
	require.NoError(t, store.Save(ctx, plan))

	got, err := store.Get(ctx, storeKey)
	require.NoError(t, err)
	assert.Equal(t, plan, got)

	// Mutating the returned copy does not leak back into the store.
	got.Topics[0].Completed = true
	again, err := store.Get(ctx, storeKey)
	require.NoError(t, err)
	assert.False(t, again.Topics[0].Completed)

	require.NoError(t, store.Delete(ctx, storeKey))
	_, err = store.Get(ctx, storeKey)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDecisionStoreIdempotentByID(t *testing.T) {
	ctx := context.Background()
	store := NewDecisionStore()

	d := &curriculum.Decision{
		ID:        "d1",
		StudentID: storeKey.StudentID,
		ModuleID:  storeKey.ModuleID,
		Type:      curriculum.DecisionNoAction,
		Revision:  1,
	}
	require.NoError(t, store.SaveDecision(ctx, d))
	require.NoError(t, store.SaveDecision(ctx, d), "replays are ignored")

	list, err := store.ListByKey(ctx, storeKey, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDecisionStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewDecisionStore()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.SaveDecision(ctx, &curriculum.Decision{
			ID:        string(rune('a' + i)),
			StudentID: storeKey.StudentID,
			ModuleID:  storeKey.ModuleID,
			Revision:  uint64(i),
		}))
	}

	list, err := store.ListByKey(ctx, storeKey, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, uint64(5), list[0].Revision)
	assert.Equal(t, uint64(4), list[1].Revision)
	assert.Equal(t, uint64(3), list[2].Revision)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	agg := performance.NewAggregate(storeKey)
	agg.TotalQuizAttempts = 2
	agg.ScoreSum = 160

	require.NoError(t, store.SaveSnapshot(ctx, agg))

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.InDelta(t, 80.0, all[0].AverageScore(), 0.001)

	require.NoError(t, store.Delete(ctx, storeKey))
	all, err = store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
