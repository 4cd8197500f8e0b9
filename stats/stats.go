// Package stats receives terminal pickup events and keeps the per-user
// donation and pickup counters.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"secondserve/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Kind string

const (
	KindVerified  Kind = "verified"
	KindCompleted Kind = "completed"
)

type TerminalEvent struct {
	PostID      primitive.ObjectID
	DonorID     primitive.ObjectID
	CollectorID primitive.ObjectID
	Servings    int
	Kind        Kind
	At          time.Time
}

// Recorder consumes terminal events. Implementations must increment
// counters atomically rather than read-modify-write them.
type Recorder interface {
	RecordTerminal(ctx context.Context, ev TerminalEvent) error
}

// MongoRecorder applies $inc updates to users.stats. Counters move on
// verification; completion events are accepted and ignored.
type MongoRecorder struct {
	users *mongo.Collection
}

var _ Recorder = (*MongoRecorder)(nil)

func NewMongoRecorder(users *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{users: users}
}

func (r *MongoRecorder) RecordTerminal(ctx context.Context, ev TerminalEvent) error {
	if ev.Kind != KindVerified {
		return nil
	}

	_, err := r.users.UpdateByID(ctx, ev.CollectorID, bson.M{
		"$inc": bson.M{"stats.totalPickups": 1, "stats.mealsServed": ev.Servings},
	})
	if err != nil {
		return fmt.Errorf("increment collector stats: %w", err)
	}

	_, err = r.users.UpdateByID(ctx, ev.DonorID, bson.M{
		"$inc": bson.M{"stats.totalDonations": 1, "stats.mealsServed": ev.Servings},
	})
	if err != nil {
		return fmt.Errorf("increment donor stats: %w", err)
	}
	return nil
}

// MemoryRecorder keeps counters in process and records every event it sees.
type MemoryRecorder struct {
	mu     sync.Mutex
	stats  map[primitive.ObjectID]models.UserStats
	events []TerminalEvent
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{stats: make(map[primitive.ObjectID]models.UserStats)}
}

func (r *MemoryRecorder) RecordTerminal(_ context.Context, ev TerminalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	if ev.Kind != KindVerified {
		return nil
	}

	c := r.stats[ev.CollectorID]
	c.TotalPickups++
	c.MealsServed += ev.Servings
	r.stats[ev.CollectorID] = c

	d := r.stats[ev.DonorID]
	d.TotalDonations++
	d.MealsServed += ev.Servings
	r.stats[ev.DonorID] = d
	return nil
}

func (r *MemoryRecorder) Stats(user primitive.ObjectID) models.UserStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats[user]
}

func (r *MemoryRecorder) Events() []TerminalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TerminalEvent(nil), r.events...)
}
