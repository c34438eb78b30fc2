package core

// core/store.go — the in-memory triple store. Facts live in three coherent
// indexes (entity, attribute, value); conflicts on (entity, attribute)
// resolve last-writer-wins by HLC stamp.

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Store is the operation surface shared by the local and network stores. The
// local variant completes immediately; the network variant suspends on the
// transport, so every operation takes a context.
type Store interface {
	Add(ctx context.Context, facts ...Fact) error
	Query(ctx context.Context, q Query) ([]Row, error)
	DeleteAllByID(ctx context.Context, id ID) error
	GenerateID() ID
}

// TripleStore is the local, ephemeral fact store.
type TripleStore struct {
	mu    sync.RWMutex
	clock *Clock

	byEntity map[ID][]Fact
	byAttr   map[ID][]Fact
	byValue  map[Value][]Fact

	log       *logrus.Entry
	telemetry *Telemetry
}

var _ Store = (*TripleStore)(nil)

// NewTripleStore builds an empty store owning a fresh clock.
func NewTripleStore() *TripleStore {
	return NewTripleStoreWith(NewClock(), nil)
}

// NewTripleStoreWith builds a store around an existing clock, optionally
// reporting to a Telemetry instance.
func NewTripleStoreWith(clock *Clock, tel *Telemetry) *TripleStore {
	return &TripleStore{
		clock:     clock,
		byEntity:  map[ID][]Fact{},
		byAttr:    map[ID][]Fact{},
		byValue:   map[Value][]Fact{},
		log:       logrus.WithField("component", "triplestore"),
		telemetry: tel,
	}
}

// Clock exposes the store's clock for observation of remote stamps.
func (s *TripleStore) Clock() *Clock { return s.clock }

// GenerateID returns a fresh entity identifier.
func (s *TripleStore) GenerateID() ID { return NewEntityID() }

// Add commits facts. Unstamped facts receive a fresh HLC stamp; pre-stamped
// facts are folded into the clock. For a given (entity, attribute) the fact
// with the greatest stamp wins and duplicates of the same value collapse, so
// at most one fact per (entity, attribute) remains.
func (s *TripleStore) Add(ctx context.Context, facts ...Fact) error {
	if err := ctx.Err(); err != nil {
		return WrapErr(ErrConnection, err, "add aborted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		if f.Value.Kind == KindAbsent {
			return Errf(ErrUnsupportedValue, "fact for entity %s has no value", f.Entity.Hex())
		}
		if f.Stamp.IsZero() {
			f.Stamp = s.clock.Now()
		} else {
			s.clock.Observe(f.Stamp)
		}
		s.commit(f)
	}
	s.telemetry.countUpdate()
	s.updateFactGauge()
	return nil
}

// commit inserts one stamped fact, displacing an older fact for the same
// (entity, attribute) if present. Caller holds the lock.
func (s *TripleStore) commit(f Fact) {
	for _, existing := range s.byEntity[f.Entity] {
		if existing.Attr != f.Attr {
			continue
		}
		if existing.Stamp.Compare(f.Stamp) >= 0 {
			return // existing fact is newer; incoming write loses
		}
		s.removeLocked(existing)
		break
	}
	s.byEntity[f.Entity] = append(s.byEntity[f.Entity], f)
	s.byAttr[f.Attr] = append(s.byAttr[f.Attr], f)
	s.byValue[f.Value] = append(s.byValue[f.Value], f)
}

// Retract removes the current fact for (entity, attr) when the tombstone
// stamp is newer. The dev server applies wire tombstones through this.
func (s *TripleStore) Retract(entity, attr ID, stamp Timestamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Observe(stamp)
	for _, existing := range s.byEntity[entity] {
		if existing.Attr != attr {
			continue
		}
		if existing.Stamp.Compare(stamp) < 0 {
			s.removeLocked(existing)
		}
		break
	}
	s.updateFactGauge()
}

// DeleteAllByID removes every fact whose entity matches id from all three
// indexes, cleaning orphaned attribute and value entries.
func (s *TripleStore) DeleteAllByID(ctx context.Context, id ID) error {
	if err := ctx.Err(); err != nil {
		return WrapErr(ErrConnection, err, "delete aborted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	victims := append([]Fact(nil), s.byEntity[id]...)
	for _, f := range victims {
		s.removeLocked(f)
	}
	if len(victims) > 0 {
		s.log.WithField("entity", id.Hex()).Debugf("deleted %d facts", len(victims))
	}
	s.updateFactGauge()
	return nil
}

// Query resolves q against the indexes. See query_engine.go.
func (s *TripleStore) Query(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapErr(ErrConnection, err, "query aborted")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.telemetry.countQuery()
	return resolve(s, q), nil
}

// Size returns the number of facts held.
func (s *TripleStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, facts := range s.byEntity {
		n += len(facts)
	}
	return n
}

// Snapshot returns a copy of every fact, for diagnostics and tests.
func (s *TripleStore) Snapshot() []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Fact
	for _, facts := range s.byEntity {
		out = append(out, facts...)
	}
	return out
}

// FactsForEntity returns copies of the entity's current facts.
func (s *TripleStore) FactsForEntity(id ID) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Fact(nil), s.byEntity[id]...)
}

// removeLocked deletes f from all three indexes and drops emptied keys.
// Caller holds the lock.
func (s *TripleStore) removeLocked(f Fact) {
	s.byEntity[f.Entity] = deleteFact(s.byEntity[f.Entity], f)
	if len(s.byEntity[f.Entity]) == 0 {
		delete(s.byEntity, f.Entity)
	}
	s.byAttr[f.Attr] = deleteFact(s.byAttr[f.Attr], f)
	if len(s.byAttr[f.Attr]) == 0 {
		delete(s.byAttr, f.Attr)
	}
	s.byValue[f.Value] = deleteFact(s.byValue[f.Value], f)
	if len(s.byValue[f.Value]) == 0 {
		delete(s.byValue, f.Value)
	}
}

func deleteFact(facts []Fact, f Fact) []Fact {
	for i := range facts {
		if facts[i] == f {
			return append(facts[:i], facts[i+1:]...)
		}
	}
	return facts
}

func (s *TripleStore) updateFactGauge() {
	if s.telemetry == nil {
		return
	}
	n := 0
	for _, facts := range s.byEntity {
		n += len(facts)
	}
	s.telemetry.setFactCount(n)
}
