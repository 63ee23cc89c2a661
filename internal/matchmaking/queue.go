package matchmaking

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kapu/chesshall/internal/obslog"
	"github.com/kapu/chesshall/pkg/halldto"
	"go.uber.org/zap"
)

// States reported by Join and Status.
const (
	StateWaiting    = "waiting"
	StateMatched    = "matched"
	StateNotWaiting = "not_waiting"
)

// SessionCreator seats a matched pair into a fresh session. Satisfied
// by the match store.
type SessionCreator interface {
	CreateMatched(ctx context.Context, whiteID, whiteName, blackID, blackName string) (*halldto.Snapshot, error)
}

type entry struct {
	playerID   string
	name       string
	enqueuedAt time.Time
}

// Queue pairs waiting players first-in-first-out. The longest-waiting
// entrant takes white, the new one black. Entries never expire on
// their own; a player leaves by being paired or by an explicit Leave.
type Queue struct {
	creator SessionCreator

	mu      sync.Mutex
	waiting []entry
}

func NewQueue(creator SessionCreator) *Queue {
	return &Queue{creator: creator}
}

// Join pairs the caller with the longest-waiting player, or enqueues
// the caller when nobody is waiting. Joining while already enqueued is
// a no-op reporting "waiting".
func (q *Queue) Join(ctx context.Context, playerID, name string) (*halldto.MatchmakingResponse, error) {
	playerID = strings.TrimSpace(playerID)
	name = strings.TrimSpace(name)
	if len(playerID) < 3 {
		return nil, halldto.Errf(halldto.CodeInvalidArgument, "player id must be at least 3 characters")
	}
	if name == "" {
		return nil, halldto.Errf(halldto.CodeInvalidArgument, "display name required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.waiting {
		if e.playerID == playerID {
			return &halldto.MatchmakingResponse{State: StateWaiting}, nil
		}
	}

	if len(q.waiting) == 0 {
		q.waiting = append(q.waiting, entry{playerID: playerID, name: name, enqueuedAt: time.Now()})
		obslog.L().Info("mm_enqueue", zap.String("player_id", playerID))
		return &halldto.MatchmakingResponse{State: StateWaiting}, nil
	}

	opponent := q.waiting[0]
	q.waiting = q.waiting[1:]

	snap, err := q.creator.CreateMatched(ctx, opponent.playerID, opponent.name, playerID, name)
	if err != nil {
		// Put the opponent back at the head so their wait is not lost.
		q.waiting = append([]entry{opponent}, q.waiting...)
		return nil, err
	}
	obslog.L().Info("mm_matched",
		zap.String("session_id", snap.ID),
		zap.String("white_id", opponent.playerID),
		zap.String("black_id", playerID),
		zap.Duration("waited", time.Since(opponent.enqueuedAt)),
	)
	return &halldto.MatchmakingResponse{
		State:     StateMatched,
		SessionID: snap.ID,
		WhiteID:   opponent.playerID,
		BlackID:   playerID,
	}, nil
}

// Leave drops the entry if present and reports whether it existed.
func (q *Queue) Leave(playerID string) bool {
	playerID = strings.TrimSpace(playerID)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.waiting {
		if e.playerID == playerID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			obslog.L().Info("mm_leave", zap.String("player_id", playerID))
			return true
		}
	}
	return false
}

// Status reports "waiting" or "not_waiting".
func (q *Queue) Status(playerID string) string {
	playerID = strings.TrimSpace(playerID)
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.waiting {
		if e.playerID == playerID {
			return StateWaiting
		}
	}
	return StateNotWaiting
}

// Len reports the number of waiting entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
