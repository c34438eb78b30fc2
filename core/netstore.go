package core

// core/netstore.go — the network-backed store: the same Store surface as the
// local triple store, serialized over the connection. Every mutation is
// tracked in a pending-writes map until the server acknowledges it.

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NetworkStore implements Store against a CONNECTED Connection.
type NetworkStore struct {
	conn  *Connection
	clock *Clock
	log   *logrus.Entry
	tel   *Telemetry

	mu      sync.Mutex
	pending map[uuid.UUID][]WireTriple
}

var _ Store = (*NetworkStore)(nil)

// NewNetworkStore wraps an established connection. The connection must
// already be CONNECTED.
func NewNetworkStore(conn *Connection, tel *Telemetry) (*NetworkStore, error) {
	if state := conn.State(); state != StateConnected {
		return nil, Errf(ErrConnection, "network store needs a connected transport, connection is %s", state)
	}
	return &NetworkStore{
		conn:    conn,
		clock:   NewClock(),
		log:     logrus.WithField("component", "netstore"),
		tel:     tel,
		pending: map[uuid.UUID][]WireTriple{},
	}, nil
}

// Clock exposes the store's clock.
func (s *NetworkStore) Clock() *Clock { return s.clock }

// GenerateID returns a fresh entity identifier.
func (s *NetworkStore) GenerateID() ID { return NewEntityID() }

// PendingWriteCount reports the number of unacknowledged write batches, for
// tests and backpressure signals.
func (s *NetworkStore) PendingWriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Add stamps, encodes and sends the facts as one triple update, tracking the
// batch as pending until the server answers.
func (s *NetworkStore) Add(ctx context.Context, facts ...Fact) error {
	triples := make([]WireTriple, 0, len(facts))
	for _, f := range facts {
		if f.Value.Kind == KindAbsent {
			return Errf(ErrUnsupportedValue, "fact for entity %s has no value", f.Entity.Hex())
		}
		if f.Stamp.IsZero() {
			f.Stamp = s.clock.Now()
		} else {
			s.clock.Observe(f.Stamp)
		}
		triples = append(triples, FactToWire(f))
	}
	return s.sendUpdate(ctx, triples)
}

// sendUpdate ships a batch of wire triples, balancing the pending map on
// every exit path.
func (s *NetworkStore) sendUpdate(ctx context.Context, triples []WireTriple) error {
	writeID := uuid.New()
	s.mu.Lock()
	s.pending[writeID] = triples
	s.tel.setPendingWrites(len(s.pending))
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, writeID)
		s.tel.setPendingWrites(len(s.pending))
		s.mu.Unlock()
	}()

	_, err := s.conn.Request(ctx, &ClientMessage{
		Kind:   MsgTripleUpdate,
		Update: &TripleUpdateRequest{Triples: triples},
	})
	return err
}

// Query serializes q, awaits the server's rows and parses them back in the
// declared projection order. Store-level filter predicates cannot be
// expressed on the wire and are rejected outright.
func (s *NetworkStore) Query(ctx context.Context, q Query) ([]Row, error) {
	if len(q.Filters) > 0 {
		return nil, Errf(ErrNotImplemented, "the wire protocol does not carry filter predicates; desugar to patterns or filter client-side")
	}
	resp, err := s.conn.Request(ctx, &ClientMessage{
		Kind:  MsgQuery,
		Query: QueryToWire(q),
	})
	if err != nil {
		return nil, err
	}
	if int(resp.Columns) != len(q.Find) {
		return nil, Errf(ErrProtocol, "server returned %d columns, query projects %d", resp.Columns, len(q.Find))
	}
	return resp.Rows, nil
}

// DeleteAllByID asks the server for the entity's facts and retracts each one
// with a tombstone triple.
func (s *NetworkStore) DeleteAllByID(ctx context.Context, id ID) error {
	const attrVar, valueVar Var = "a", "v"
	rows, err := s.Query(ctx, Query{
		Find: []Var{attrVar},
		Where: []Pattern{{
			Entity: LitID(id),
			Attr:   V(attrVar),
			Value:  V(valueVar),
		}},
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	tombstones := make([]WireTriple, 0, len(rows))
	for _, row := range rows {
		if len(row) != 1 || !row[0].IsID {
			return Errf(ErrProtocol, "expected attribute id column in delete query result")
		}
		tombstones = append(tombstones, WireTriple{
			Entity: id,
			Attr:   row[0].ID,
			Stamp:  s.clock.Now(),
		})
	}
	return s.sendUpdate(ctx, tombstones)
}
