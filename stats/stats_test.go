package stats

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryRecorder_VerifiedIncrementsBothParties(t *testing.T) {
	r := NewMemoryRecorder()
	donor, collector := primitive.NewObjectID(), primitive.NewObjectID()

	require.NoError(t, r.RecordTerminal(context.Background(), TerminalEvent{
		PostID: primitive.NewObjectID(), DonorID: donor, CollectorID: collector, Servings: 10, Kind: KindVerified,
	}))

	assert.Equal(t, 1, r.Stats(donor).TotalDonations)
	assert.Equal(t, 10, r.Stats(donor).MealsServed)
	assert.Equal(t, 1, r.Stats(collector).TotalPickups)
	assert.Equal(t, 10, r.Stats(collector).MealsServed)
}

func TestMemoryRecorder_CompletedLeavesCounters(t *testing.T) {
	r := NewMemoryRecorder()
	donor, collector := primitive.NewObjectID(), primitive.NewObjectID()

	require.NoError(t, r.RecordTerminal(context.Background(), TerminalEvent{
		DonorID: donor, CollectorID: collector, Servings: 10, Kind: KindCompleted,
	}))

	assert.Zero(t, r.Stats(donor).MealsServed)
	assert.Len(t, r.Events(), 1)
}

func TestMemoryRecorder_ConcurrentIncrements(t *testing.T) {
	r := NewMemoryRecorder()
	donor := primitive.NewObjectID()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.RecordTerminal(context.Background(), TerminalEvent{
				DonorID: donor, CollectorID: primitive.NewObjectID(), Servings: 2, Kind: KindVerified,
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Stats(donor).TotalDonations)
	assert.Equal(t, 100, r.Stats(donor).MealsServed)
}
