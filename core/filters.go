package core

// core/filters.go — the declarative filter taxonomy exposed by the database
// façade, and its translation into store-level patterns and predicates.
// Applicability is checked before anything touches a store: a string operator
// on a number field is a SCHEMA_MISMATCH, never a silent miss.

import "strings"

// FilterOp names a declarative filter operator.
type FilterOp string

const (
	OpIsDefined      FilterOp = "isDefined"
	OpEquals         FilterOp = "equals"
	OpNotEquals      FilterOp = "notEquals"
	OpGreaterThan    FilterOp = "greaterThan"
	OpGreaterOrEqual FilterOp = "greaterThanOrEqual"
	OpLessThan       FilterOp = "lessThan"
	OpLessOrEqual    FilterOp = "lessThanOrEqual"
	OpContains       FilterOp = "contains"
	OpStartsWith     FilterOp = "startsWith"
	OpEndsWith       FilterOp = "endsWith"
)

// FieldFilter is one declarative condition on an entity field.
type FieldFilter struct {
	Field string
	Op    FilterOp
	Value any
}

// operator applicability per field kind.
var filterOps = map[FieldKind]map[FilterOp]bool{
	FieldString: {
		OpIsDefined: true, OpEquals: true, OpNotEquals: true,
		OpContains: true, OpStartsWith: true, OpEndsWith: true,
	},
	FieldNumber: {
		OpIsDefined: true, OpEquals: true, OpNotEquals: true,
		OpGreaterThan: true, OpGreaterOrEqual: true,
		OpLessThan: true, OpLessOrEqual: true,
	},
	FieldBool: {
		OpIsDefined: true, OpEquals: true,
	},
	FieldRef: {
		OpIsDefined: true, OpEquals: true, OpNotEquals: true,
	},
}

// checkFilter validates operator applicability and operand type against the
// field definition, returning the operand as a Value (except isDefined,
// which carries a bare bool).
func checkFilter(entity, field string, fd Field, flt FieldFilter) (Value, error) {
	if !filterOps[fd.Kind][flt.Op] {
		return Value{}, Errf(ErrSchemaMismatch, "%s.%s: operator %q does not apply to %s fields",
			entity, field, flt.Op, fd.Kind)
	}
	if flt.Op == OpIsDefined {
		if _, ok := flt.Value.(bool); !ok {
			return Value{}, Errf(ErrSchemaMismatch, "%s.%s: isDefined expects a boolean", entity, field)
		}
		return Value{}, nil
	}
	v, err := FromAny(flt.Value)
	if err != nil {
		return Value{}, Errf(ErrSchemaMismatch, "%s.%s: %v", entity, field, err)
	}
	if !kindMatches(fd.Kind, v) {
		return Value{}, Errf(ErrSchemaMismatch, "%s.%s: operand %s does not match field type %s",
			entity, field, v.Kind, fd.Kind)
	}
	return v, nil
}

// predicateFor builds the engine predicate for a comparison operator. An
// unbound selector sees the field's fallback when one is declared; with no
// fact and no fallback every comparison is false.
func predicateFor(fd Field, op FilterOp, operand Value) func(Datum) bool {
	return func(d Datum) bool {
		if !d.Defined() && fd.Fallback != nil {
			d = ValueDatum(*fd.Fallback)
		}
		if !d.Defined() || d.IsID {
			return false
		}
		v := d.Value
		switch op {
		case OpEquals:
			return v.Equal(operand)
		case OpNotEquals:
			return !v.Equal(operand)
		case OpGreaterThan:
			return v.Kind == KindNumber && v.Num > operand.Num
		case OpGreaterOrEqual:
			return v.Kind == KindNumber && v.Num >= operand.Num
		case OpLessThan:
			return v.Kind == KindNumber && v.Num < operand.Num
		case OpLessOrEqual:
			return v.Kind == KindNumber && v.Num <= operand.Num
		case OpContains:
			return v.Kind == KindString && strings.Contains(v.Str, operand.Str)
		case OpStartsWith:
			return v.Kind == KindString && strings.HasPrefix(v.Str, operand.Str)
		case OpEndsWith:
			return v.Kind == KindString && strings.HasSuffix(v.Str, operand.Str)
		}
		return false
	}
}
