package core

// core/database.go — the schema-driven entity façade. Entity operations
// desugar into triples and pattern queries; the runtime schema is the single
// source of truth for validation, attribute derivation and fallbacks.

import (
	"context"

	"github.com/sirupsen/logrus"
)

// entityVar binds the entity identifier in every desugared query.
const entityVar Var = "id"

// Database exposes create/query/delete per schema entity over any Store.
type Database struct {
	schema *Schema
	store  Store
	log    *logrus.Entry
}

// NewDatabase builds a façade over the given schema and store.
func NewDatabase(schema *Schema, store Store) *Database {
	return &Database{
		schema: schema,
		store:  store,
		log:    logrus.WithField("component", "database"),
	}
}

// Schema returns the façade's schema.
func (d *Database) Schema() *Schema { return d.schema }

// Store returns the backing store.
func (d *Database) Store() Store { return d.store }

// Create validates fields against the schema, generates an id, and commits
// one fact per supplied field plus the identity fact that enumerates
// entities of the type. It returns the canonical record: the supplied
// fields plus "id".
func (d *Database) Create(ctx context.Context, entity string, fields map[string]any) (map[string]any, error) {
	if err := d.schema.CheckRecord(entity, fields); err != nil {
		return nil, err
	}
	id := d.store.GenerateID()

	facts := make([]Fact, 0, len(fields)+1)
	facts = append(facts, NewFact(id, AttributeID(entity, "id"), String(id.Hex())))
	for _, name := range sortedKeys(fields) {
		v, err := FromAny(fields[name])
		if err != nil {
			return nil, err
		}
		facts = append(facts, NewFact(id, AttributeID(entity, name), v))
	}
	if err := d.store.Add(ctx, facts...); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["id"] = id.Hex()
	d.log.WithFields(logrus.Fields{"entity": entity, "id": id.Hex()}).Debug("created")
	return out, nil
}

// EntityQuery selects entities of one type. Fields lists the projected
// field names ("id" is always allowed); an empty list projects every schema
// field plus "id". Where holds declarative filters, OrderBy sorts and a
// positive Limit truncates.
type EntityQuery struct {
	Fields  []string
	Where   []FieldFilter
	OrderBy []FieldOrder
	Limit   int
}

// FieldOrder is one façade-level sort key.
type FieldOrder struct {
	Field string
	Desc  bool
}

// Query desugars q into a store query, executes it and maps each row back
// to a record. Selected fields with no fact take the schema fallback when
// one is declared and are omitted otherwise.
func (d *Database) Query(ctx context.Context, entity string, q EntityQuery) ([]map[string]any, error) {
	def, ok := d.schema.Entity(entity)
	if !ok {
		return nil, Errf(ErrSchemaMismatch, "unknown entity %q", entity)
	}

	selected := q.Fields
	if len(selected) == 0 {
		selected = append([]string{"id"}, sortedKeys(def)...)
	}
	for _, f := range selected {
		if f == "id" {
			continue
		}
		if _, known := def[f]; !known {
			return nil, Errf(ErrSchemaMismatch, "%s: unknown field %q", entity, f)
		}
	}

	sq := Query{
		Find:  []Var{entityVar},
		Where: []Pattern{identityPattern(entity)},
	}

	// One optional pattern per variable the query touches: selected fields,
	// filter targets and sort keys all need a binding to read.
	covered := map[string]bool{}
	bindField := func(name string) {
		if name == "id" || covered[name] {
			return
		}
		covered[name] = true
		sq.Optional = append(sq.Optional, Pattern{
			Entity: V(entityVar),
			Attr:   LitID(AttributeID(entity, name)),
			Value:  V(Var(name)),
		})
	}
	for _, f := range selected {
		bindField(f)
	}
	for _, flt := range q.Where {
		bindField(flt.Field)
	}
	for _, o := range q.OrderBy {
		bindField(o.Field)
	}
	for _, f := range selected {
		if f != "id" {
			sq.Find = append(sq.Find, Var(f))
		}
	}
	// The engine orders projected columns, so sort keys that are not selected
	// get a column after the selected fields; it is not mapped into records.
	for _, o := range q.OrderBy {
		if o.Field != "id" && !containsString(selected, o.Field) {
			sq.Find = append(sq.Find, Var(o.Field))
		}
	}

	for _, flt := range q.Where {
		fd, known := def[flt.Field]
		if !known {
			return nil, Errf(ErrSchemaMismatch, "%s: filter on unknown field %q", entity, flt.Field)
		}
		operand, err := checkFilter(entity, flt.Field, fd, flt)
		if err != nil {
			return nil, err
		}
		fieldPattern := Pattern{
			Entity: V(entityVar),
			Attr:   LitID(AttributeID(entity, flt.Field)),
			Value:  V(Var(flt.Field)),
		}
		if flt.Op == OpIsDefined {
			if flt.Value.(bool) {
				sq.Where = append(sq.Where, fieldPattern)
			} else {
				sq.WhereNot = append(sq.WhereNot, fieldPattern)
			}
			continue
		}
		sq.Filters = append(sq.Filters, Filter{
			Selector:  Var(flt.Field),
			Predicate: predicateFor(fd, flt.Op, operand),
		})
	}

	for _, o := range q.OrderBy {
		if _, known := def[o.Field]; !known && o.Field != "id" {
			return nil, Errf(ErrSchemaMismatch, "%s: order by unknown field %q", entity, o.Field)
		}
		sq.OrderBy = append(sq.OrderBy, Order{Var: Var(o.Field), Desc: o.Desc})
	}
	if q.Limit > 0 {
		sq.HasLimit = true
		sq.Limit = q.Limit
	}

	rows, err := d.store.Query(ctx, sq)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := map[string]any{}
		col := 0
		idDatum := row[col]
		col++
		if idDatum.IsID {
			rec["id"] = idDatum.ID.Hex()
		}
		for _, f := range selected {
			if f == "id" {
				continue
			}
			datum := row[col]
			col++
			fd := def[f]
			switch {
			case datum.Defined() && !datum.IsID:
				rec[f] = datum.Value.Any()
			case fd.Fallback != nil:
				rec[f] = fd.Fallback.Any()
			}
		}
		if !containsString(selected, "id") && len(q.Fields) > 0 {
			delete(rec, "id")
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes every fact of the entity identified by id.
func (d *Database) Delete(ctx context.Context, id ID) error {
	return d.store.DeleteAllByID(ctx, id)
}

// identityPattern matches the synthetic identity fact that enumerates
// entities of a type and binds the entity variable.
func identityPattern(entity string) Pattern {
	return Pattern{
		Entity: V(entityVar),
		Attr:   LitID(AttributeID(entity, "id")),
		Value:  V(Var("__idval")),
	}
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
