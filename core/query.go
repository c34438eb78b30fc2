package core

// core/query.go — the datalog-style query model: variables, pattern slots,
// binding contexts and the query tuple the engine resolves.

// Var is a nominal query variable; two variables are equal iff their names
// are equal.
type Var string

// Datum is anything a variable can bind to: an identifier (entity or
// attribute position) or a primitive value (value position). The zero Datum
// is "absent".
type Datum struct {
	ID    ID
	IsID  bool
	Value Value
}

// IDDatum wraps an identifier.
func IDDatum(id ID) Datum { return Datum{ID: id, IsID: true} }

// ValueDatum wraps a primitive value.
func ValueDatum(v Value) Datum { return Datum{Value: v} }

// Defined reports whether the datum carries a binding.
func (d Datum) Defined() bool {
	return d.IsID || d.Value.Kind != KindAbsent
}

// Equal reports datum equality across both representations.
func (d Datum) Equal(other Datum) bool {
	if d.IsID != other.IsID {
		return false
	}
	if d.IsID {
		return d.ID == other.ID
	}
	return d.Value.Equal(other.Value)
}

// Compare orders datums totally: identifiers before values, identifiers by
// bytes, values by Value.Compare. Absent ordering is decided by callers.
func (d Datum) Compare(other Datum) int {
	if d.IsID != other.IsID {
		if d.IsID {
			return -1
		}
		return 1
	}
	if d.IsID {
		switch {
		case string(d.ID[:]) < string(other.ID[:]):
			return -1
		case string(d.ID[:]) > string(other.ID[:]):
			return 1
		}
		return 0
	}
	return d.Value.Compare(other.Value)
}

// Term is one slot of a pattern: a variable or a literal datum.
type Term struct {
	Var Var   // non-empty means a variable slot
	Lit Datum // literal otherwise
}

// V builds a variable term.
func V(name Var) Term { return Term{Var: name} }

// LitID builds a literal identifier term.
func LitID(id ID) Term { return Term{Lit: IDDatum(id)} }

// LitValue builds a literal value term.
func LitValue(v Value) Term { return Term{Lit: ValueDatum(v)} }

// IsVar reports whether the slot is a variable.
func (t Term) IsVar() bool { return t.Var != "" }

// Pattern is a query clause matching facts by entity, attribute and value.
type Pattern struct {
	Entity Term
	Attr   Term
	Value  Term
}

// Filter applies a predicate to the datum bound to Selector. An unbound
// selector is presented to the predicate as the zero (absent) Datum.
type Filter struct {
	Selector  Var
	Predicate func(Datum) bool
}

// Order is one sort key: a variable and a direction. Rows whose variable is
// absent sort last regardless of direction.
type Order struct {
	Var  Var
	Desc bool
}

// Query is the tuple the engine resolves: mandatory conjunctive patterns,
// optional extensions, negation, post-filters, ordering and limit. Find
// declares the projection order of the result rows.
type Query struct {
	Find     []Var
	Where    []Pattern
	Optional []Pattern
	WhereNot []Pattern
	Filters  []Filter
	OrderBy  []Order
	HasLimit bool
	Limit    int
}

// Row is one result: datums in Find order; absent datums appear for
// variables bound only through optional patterns that did not match.
type Row []Datum

// bindings is one candidate solution during resolution. Clones are cheap and
// branches never propagate to siblings.
type bindings map[Var]Datum

func (b bindings) clone() bindings {
	out := make(bindings, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	return out
}
