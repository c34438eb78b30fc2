package core

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
)

func nameAttr() ID { return AttributeID("users", "name") }
func ageAttr() ID  { return AttributeID("users", "age") }

// checkIndexCoherence verifies every fact appears in exactly all three
// indexes and no index holds a stranger.
func checkIndexCoherence(t *testing.T, s *TripleStore) {
	t.Helper()
	count := func(facts []Fact, f Fact) int {
		n := 0
		for _, x := range facts {
			if x == f {
				n++
			}
		}
		return n
	}
	total := map[string]int{"entity": 0, "attr": 0, "value": 0}
	for _, facts := range s.byEntity {
		for _, f := range facts {
			total["entity"]++
			if count(s.byAttr[f.Attr], f) != 1 {
				t.Fatalf("fact %+v not exactly once in attribute index", f)
			}
			if count(s.byValue[f.Value], f) != 1 {
				t.Fatalf("fact %+v not exactly once in value index", f)
			}
		}
	}
	for _, facts := range s.byAttr {
		total["attr"] += len(facts)
	}
	for _, facts := range s.byValue {
		total["value"] += len(facts)
	}
	if total["entity"] != total["attr"] || total["entity"] != total["value"] {
		t.Fatalf("index sizes diverge: %+v", total)
	}
	for key, facts := range s.byEntity {
		if len(facts) == 0 {
			t.Fatalf("orphaned entity key %s", key.Hex())
		}
	}
	for key, facts := range s.byAttr {
		if len(facts) == 0 {
			t.Fatalf("orphaned attribute key %s", key.Hex())
		}
	}
	for key, facts := range s.byValue {
		if len(facts) == 0 {
			t.Fatalf("orphaned value key %+v", key)
		}
	}
}

// TestStoreLastWriterWins verifies that for conflicting writes the greater
// stamp wins regardless of insertion order.
func TestStoreLastWriterWins(t *testing.T) {
	ctx := context.Background()
	e := NewEntityID()
	h1 := Timestamp{Wall: 100, Logical: 1, Node: 1}
	h2 := Timestamp{Wall: 100, Logical: 2, Node: 1}

	for _, order := range [][2]Fact{
		{{Entity: e, Attr: nameAttr(), Value: String("old"), Stamp: h1}, {Entity: e, Attr: nameAttr(), Value: String("new"), Stamp: h2}},
		{{Entity: e, Attr: nameAttr(), Value: String("new"), Stamp: h2}, {Entity: e, Attr: nameAttr(), Value: String("old"), Stamp: h1}},
	} {
		s := NewTripleStore()
		if err := s.Add(ctx, order[0]); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := s.Add(ctx, order[1]); err != nil {
			t.Fatalf("add: %v", err)
		}
		facts := s.FactsForEntity(e)
		if len(facts) != 1 {
			t.Fatalf("want exactly one fact, got %d", len(facts))
		}
		if facts[0].Value.Str != "new" {
			t.Fatalf("want value \"new\", got %q", facts[0].Value.Str)
		}
		checkIndexCoherence(t, s)
	}
}

// TestStoreDeduplicates verifies identical (e, a, v) facts collapse to one,
// retaining the greatest stamp.
func TestStoreDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := NewTripleStore()
	e := NewEntityID()
	f1 := Fact{Entity: e, Attr: nameAttr(), Value: String("x"), Stamp: Timestamp{Wall: 10, Node: 1}}
	f2 := Fact{Entity: e, Attr: nameAttr(), Value: String("x"), Stamp: Timestamp{Wall: 20, Node: 1}}
	if err := s.Add(ctx, f1, f2, f1); err != nil {
		t.Fatalf("add: %v", err)
	}
	facts := s.FactsForEntity(e)
	if len(facts) != 1 {
		t.Fatalf("want one fact, got %d", len(facts))
	}
	if facts[0].Stamp != f2.Stamp {
		t.Fatalf("dedup kept stamp %+v, want max %+v", facts[0].Stamp, f2.Stamp)
	}
	checkIndexCoherence(t, s)
}

// TestStoreDeleteAllByID verifies deletion removes every trace of the
// entity from all indexes.
func TestStoreDeleteAllByID(t *testing.T) {
	ctx := context.Background()
	s := NewTripleStore()
	victim := NewEntityID()
	keeper := NewEntityID()
	shared := String("shared-value")
	if err := s.Add(ctx,
		NewFact(victim, nameAttr(), shared),
		NewFact(victim, ageAttr(), Number(30)),
		NewFact(keeper, nameAttr(), shared),
	); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.DeleteAllByID(ctx, victim); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := s.FactsForEntity(victim); len(got) != 0 {
		t.Fatalf("victim still has %d facts", len(got))
	}
	if got := s.FactsForEntity(keeper); len(got) != 1 {
		t.Fatalf("keeper lost facts: %d", len(got))
	}
	checkIndexCoherence(t, s)
	// Deleting an absent entity is a no-op.
	if err := s.DeleteAllByID(ctx, NewEntityID()); err != nil {
		t.Fatalf("delete of unknown entity: %v", err)
	}
}

// TestStoreUnstampedFactsGetFreshStamps verifies the store stamps unstamped
// facts with strictly increasing readings.
func TestStoreUnstampedFactsGetFreshStamps(t *testing.T) {
	ctx := context.Background()
	s := NewTripleStore()
	e := NewEntityID()
	if err := s.Add(ctx, NewFact(e, nameAttr(), String("a")), NewFact(e, ageAttr(), Number(1))); err != nil {
		t.Fatalf("add: %v", err)
	}
	facts := s.FactsForEntity(e)
	if len(facts) != 2 {
		t.Fatalf("want 2 facts, got %d", len(facts))
	}
	for _, f := range facts {
		if f.Stamp.IsZero() {
			t.Fatalf("fact %+v left unstamped", f)
		}
	}
}

// TestStoreRejectsAbsentValue verifies a fact without a value cannot be
// added through the public surface.
func TestStoreRejectsAbsentValue(t *testing.T) {
	s := NewTripleStore()
	err := s.Add(context.Background(), Fact{Entity: NewEntityID(), Attr: nameAttr()})
	if KindOf(err) != ErrUnsupportedValue {
		t.Fatalf("expected UNSUPPORTED_VALUE, got %v", err)
	}
}

// TestStoreRetract verifies tombstone application respects stamps.
func TestStoreRetract(t *testing.T) {
	ctx := context.Background()
	s := NewTripleStore()
	e := NewEntityID()
	h := Timestamp{Wall: 50, Node: 1}
	if err := s.Add(ctx, Fact{Entity: e, Attr: nameAttr(), Value: String("x"), Stamp: h}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Retract(e, nameAttr(), Timestamp{Wall: 40, Node: 1}) // older: no-op
	if len(s.FactsForEntity(e)) != 1 {
		t.Fatal("older tombstone removed a newer fact")
	}
	s.Retract(e, nameAttr(), Timestamp{Wall: 60, Node: 1})
	if len(s.FactsForEntity(e)) != 0 {
		t.Fatal("newer tombstone did not remove the fact")
	}
	checkIndexCoherence(t, s)
}

// TestStoreIndexCoherenceRandomized drives a random mix of adds, conflicts
// and deletes, checking index coherence throughout.
func TestStoreIndexCoherenceRandomized(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	s := NewTripleStore()
	entities := make([]ID, 8)
	for i := range entities {
		entities[i] = NewEntityID()
	}
	attrs := []ID{nameAttr(), ageAttr(), AttributeID("users", "id")}
	for step := 0; step < 2000; step++ {
		e := entities[rng.Intn(len(entities))]
		switch rng.Intn(10) {
		case 0:
			if err := s.DeleteAllByID(ctx, e); err != nil {
				t.Fatalf("delete: %v", err)
			}
		default:
			f := Fact{
				Entity: e,
				Attr:   attrs[rng.Intn(len(attrs))],
				Value:  String(fmt.Sprintf("v%d", rng.Intn(5))),
				Stamp:  Timestamp{Wall: uint64(rng.Intn(100) + 1), Logical: uint32(rng.Intn(4)), Node: 1},
			}
			if err := s.Add(ctx, f); err != nil {
				t.Fatalf("add: %v", err)
			}
		}
		if step%100 == 0 {
			checkIndexCoherence(t, s)
		}
	}
	checkIndexCoherence(t, s)
	// After quiescence: at most one fact per (entity, attribute).
	for _, facts := range s.byEntity {
		seen := map[ID]bool{}
		for _, f := range facts {
			if seen[f.Attr] {
				t.Fatalf("two facts for one (entity, attribute): %+v", f)
			}
			seen[f.Attr] = true
		}
	}
}
