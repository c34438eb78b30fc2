package core

// core/query_engine.go — conjunctive pattern resolution over the triple
// store's indexes. Resolution threads a set of binding contexts through the
// where patterns, extends them with optionals, prunes by negation and
// filters, then projects, orders and truncates.

import "sort"

// resolve runs q against the store. Caller holds the store's read lock.
func resolve(s *TripleStore, q Query) []Row {
	rows := []Row{}
	if len(q.Where) == 0 {
		// An unconstrained query matches nothing, not the universe.
		return rows
	}

	ctxs := []bindings{{}}
	for _, p := range q.Where {
		ctxs = matchPattern(s, ctxs, p)
		if len(ctxs) == 0 {
			return rows
		}
	}

	for _, p := range q.Optional {
		next := make([]bindings, 0, len(ctxs))
		for _, b := range ctxs {
			if ext := unifyAgainst(s, b, p); len(ext) > 0 {
				next = append(next, ext...)
			} else {
				next = append(next, b)
			}
		}
		ctxs = next
	}

	if len(q.WhereNot) > 0 {
		kept := ctxs[:0:0]
		for _, b := range ctxs {
			if !subqueryMatches(s, b, q.WhereNot) {
				kept = append(kept, b)
			}
		}
		ctxs = kept
	}

	for _, f := range q.Filters {
		kept := ctxs[:0:0]
		for _, b := range ctxs {
			if f.Predicate(b[f.Selector]) {
				kept = append(kept, b)
			}
		}
		ctxs = kept
	}

	for _, b := range ctxs {
		row := make(Row, len(q.Find))
		for i, v := range q.Find {
			row[i] = b[v]
		}
		rows = append(rows, row)
	}

	orderRows(rows, q.Find, q.OrderBy)

	if q.HasLimit {
		n := q.Limit
		if n < 0 {
			n = 0
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	return rows
}

// matchPattern advances every context through one mandatory pattern,
// producing the cross-product of surviving extensions.
func matchPattern(s *TripleStore, ctxs []bindings, p Pattern) []bindings {
	var out []bindings
	for _, b := range ctxs {
		out = append(out, unifyAgainst(s, b, p)...)
	}
	return out
}

// subqueryMatches reports whether the conjunction of patterns has at least
// one solution when started from b.
func subqueryMatches(s *TripleStore, b bindings, patterns []Pattern) bool {
	ctxs := []bindings{b}
	for _, p := range patterns {
		ctxs = matchPattern(s, ctxs, p)
		if len(ctxs) == 0 {
			return false
		}
	}
	return true
}

// unifyAgainst returns every extension of b that unifies p with a stored
// fact.
func unifyAgainst(s *TripleStore, b bindings, p Pattern) []bindings {
	var out []bindings
	for _, f := range s.candidates(b, p) {
		if nb, ok := unify(b, p, f); ok {
			out = append(out, nb)
		}
	}
	return out
}

// boundDatum resolves a term under the context: a literal yields itself, a
// variable yields its current binding (absent if unbound).
func boundDatum(b bindings, t Term) Datum {
	if t.IsVar() {
		return b[t.Var]
	}
	return t.Lit
}

// candidates picks the index probe for p under b: among the bound slots,
// the one giving the smallest candidate set, preferring entity over
// attribute over value on ties. With no bound slot the entity index is
// scanned in full.
func (s *TripleStore) candidates(b bindings, p Pattern) []Fact {
	var best []Fact
	found := false
	consider := func(facts []Fact) {
		if !found || len(facts) < len(best) {
			best = facts
			found = true
		}
	}
	if d := boundDatum(b, p.Entity); d.Defined() {
		if !d.IsID {
			return nil // an entity slot can only hold an identifier
		}
		consider(s.byEntity[d.ID])
	}
	if d := boundDatum(b, p.Attr); d.Defined() {
		if !d.IsID {
			return nil
		}
		consider(s.byAttr[d.ID])
	}
	if d := boundDatum(b, p.Value); d.Defined() {
		if d.IsID {
			return nil // a value slot holds primitives, never identifiers
		}
		consider(s.byValue[d.Value])
	}
	if found {
		return best
	}
	var all []Fact
	for _, facts := range s.byEntity {
		all = append(all, facts...)
	}
	return all
}

// unify attempts to match p against f under b. Literal slots must equal the
// fact's component; variable slots bind if unbound, else must agree. The
// returned context is a clone; b is never mutated.
func unify(b bindings, p Pattern, f Fact) (bindings, bool) {
	slots := [3]struct {
		term Term
		fact Datum
	}{
		{p.Entity, IDDatum(f.Entity)},
		{p.Attr, IDDatum(f.Attr)},
		{p.Value, ValueDatum(f.Value)},
	}
	var nb bindings
	for _, slot := range slots {
		if !slot.term.IsVar() {
			if !slot.term.Lit.Equal(slot.fact) {
				return nil, false
			}
			continue
		}
		cur, bound := b[slot.term.Var]
		if nb != nil {
			cur, bound = nb[slot.term.Var]
		}
		if bound && cur.Defined() {
			if !cur.Equal(slot.fact) {
				return nil, false
			}
			continue
		}
		if nb == nil {
			nb = b.clone()
		}
		nb[slot.term.Var] = slot.fact
	}
	if nb == nil {
		nb = b
	}
	return nb, true
}

// orderRows sorts rows by the order keys, comparing the projected datums for
// each key in sequence. Absent datums sort last regardless of direction. The
// sort is stable.
func orderRows(rows []Row, find []Var, orderBy []Order) {
	if len(orderBy) == 0 {
		return
	}
	idx := make(map[Var]int, len(find))
	for i, v := range find {
		idx[v] = i
	}
	cols := make([]int, 0, len(orderBy))
	for _, o := range orderBy {
		if i, ok := idx[o.Var]; ok {
			cols = append(cols, i)
		} else {
			cols = append(cols, -1)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, o := range orderBy {
			col := cols[k]
			if col < 0 {
				continue
			}
			a, b := rows[i][col], rows[j][col]
			switch {
			case !a.Defined() && !b.Defined():
				continue
			case !a.Defined():
				return false
			case !b.Defined():
				return true
			}
			c := a.Compare(b)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
