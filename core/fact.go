package core

// Fact is an atomic assertion: entity, attribute, value, stamped with the
// hybrid logical clock that committed it. Public APIs expose (E, A, V); the
// stamp drives last-writer-wins resolution inside the stores.
type Fact struct {
	Entity ID
	Attr   ID
	Value  Value
	Stamp  Timestamp
}

// NewFact builds an unstamped fact; the store stamps it on commit.
func NewFact(entity ID, attr ID, value Value) Fact {
	return Fact{Entity: entity, Attr: attr, Value: value}
}

// Tombstone reports whether the fact retracts rather than asserts, i.e. it
// carries no value.
func (f Fact) Tombstone() bool {
	return f.Value.Kind == KindAbsent
}
