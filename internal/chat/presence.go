package chat

import (
	"context"
	"log"
	"time"

	"github.com/teamsync-io/teamsync/internal/events"
	"github.com/teamsync-io/teamsync/internal/store"
	"github.com/teamsync-io/teamsync/internal/types"
)

// PresenceTracker owns the presence record. It is mutated only by the
// connection lifecycle: the room router calls Connected on a user's first
// live session and Disconnected on their last.
type PresenceTracker struct {
	log *log.Logger
	db  store.Repository
	bus *events.Bus
}

func NewPresenceTracker(logger *log.Logger, db store.Repository, bus *events.Bus) *PresenceTracker {
	return &PresenceTracker{log: logger, db: db, bus: bus}
}

func (p *PresenceTracker) Connected(ctx context.Context, userId string) {
	p.setStatus(ctx, userId, types.StatusOnline)
}

func (p *PresenceTracker) Disconnected(ctx context.Context, userId string) {
	p.setStatus(ctx, userId, types.StatusOffline)
}

func (p *PresenceTracker) setStatus(ctx context.Context, userId, status string) {
	userOID, err := parseID(userId)
	if err != nil {
		p.log.Printf("presence: %v", err)
		return
	}

	now := time.Now().UTC()
	if err := p.db.UpsertPresence(ctx, userOID, status, now); err != nil {
		p.log.Printf("presence: upsert %s for %s: %v", status, userId, err)
		return
	}

	p.bus.Publish(events.PresenceChanged{
		UserId:     userId,
		Status:     status,
		LastSeenAt: now,
	})
}

func (p *PresenceTracker) Get(ctx context.Context, userId string) (types.Presence, error) {
	userOID, err := parseID(userId)
	if err != nil {
		return types.Presence{}, err
	}

	pr, err := p.db.GetPresence(ctx, userOID)
	if err != nil {
		if err == store.ErrNotFound {
			// never connected: report offline with zero last-seen
			return types.Presence{UserId: userId, Status: types.StatusOffline}, nil
		}
		return types.Presence{}, err
	}

	return types.Presence{
		UserId:     pr.UserId.Hex(),
		Status:     pr.Status,
		LastSeenAt: pr.LastSeenAt,
	}, nil
}
