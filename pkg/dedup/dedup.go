package dedup

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/signalmesh/hermes/metrics"
	"github.com/signalmesh/hermes/pkg/types"
)

// ErrStoreUnavailable signals that the dedup store could not be reached. The
// caller must fail the event in that case: assuming "new" would break the
// at-most-once guarantee.
var ErrStoreUnavailable = errors.New("deduplication store unavailable")

// Store is the atomic insert-if-absent collaborator. Implementations must
// guarantee that for a given key exactly one concurrent caller gets true.
type Store interface {
	InsertIfAbsent(key, orgID string, deleteAfter *time.Time) (bool, error)
}

// Key is a derived deduplication key. An empty Value disables deduplication
// for the event.
type Key struct {
	Value       string
	DeleteAfter *time.Time
}

// KeyStrategy derives the dedup key for the events it matches. Strategies are
// consulted in registration order; the first match wins.
type KeyStrategy interface {
	Matches(event *types.Event) bool
	Key(event *types.Event) Key
}

type Gate struct {
	store      Store
	strategies []KeyStrategy
	log        *zap.Logger
}

func NewGate(store Store, log *zap.Logger, strategies ...KeyStrategy) *Gate {
	// The default strategy backstops everything the specific ones skip.
	strategies = append(strategies, DefaultStrategy{})
	return &Gate{store: store, strategies: strategies, log: log}
}

// IsNew reports whether the event's derived key has never been seen before.
// Duplicate events return false and should be dropped silently. A store
// failure is returned wrapped in ErrStoreUnavailable and must fail the event.
func (g *Gate) IsNew(event *types.Event) (bool, error) {
	var key Key
	for _, s := range g.strategies {
		if s.Matches(event) {
			key = s.Key(event)
			break
		}
	}

	if key.Value == "" {
		// Events without a derivable key are intentionally processed every
		// time: deduplication is opt-in per event identity, not a hard gate.
		metrics.MessageIDTotal.WithLabelValues("missing").Inc()
		return true, nil
	}
	metrics.MessageIDTotal.WithLabelValues("valid").Inc()

	fresh, err := g.store.InsertIfAbsent(key.Value, event.OrgID, key.DeleteAfter)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !fresh {
		metrics.DuplicateEventsTotal.Inc()
		g.log.Info("duplicate event dropped",
			zap.String("org_id", event.OrgID),
			zap.String("dedup_key", key.Value))
	}
	return fresh, nil
}
