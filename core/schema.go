package core

// core/schema.go — the declarative entity/field model. The runtime schema is
// the single source of truth: entity operations are validated against it and
// attribute ids are derived from its entity/field names.

import "sort"

// FieldKind enumerates the declarable field types.
type FieldKind uint8

const (
	FieldString FieldKind = iota + 1
	FieldNumber
	FieldBool
	FieldRef
)

func (k FieldKind) String() string {
	switch k {
	case FieldString:
		return "string"
	case FieldNumber:
		return "number"
	case FieldBool:
		return "boolean"
	case FieldRef:
		return "ref"
	}
	return "invalid"
}

// Field describes one declared field of an entity.
type Field struct {
	Kind     FieldKind
	Optional bool
	Fallback *Value
	Ref      string // target entity name, FieldRef only
}

// StringField declares a string field.
func StringField() Field { return Field{Kind: FieldString} }

// NumberField declares a numeric field.
func NumberField() Field { return Field{Kind: FieldNumber} }

// BoolField declares a boolean field.
func BoolField() Field { return Field{Kind: FieldBool} }

// RefField declares a reference to another entity; the stored value is the
// referenced entity's hex id.
func RefField(target string) Field { return Field{Kind: FieldRef, Ref: target} }

// AsOptional marks the field optional.
func (f Field) AsOptional() Field {
	f.Optional = true
	return f
}

// WithFallback attaches a fallback returned when an entity has no fact for
// the field. The fallback must match the field kind; mismatches surface at
// schema construction.
func (f Field) WithFallback(v any) Field {
	if val, err := FromAny(v); err == nil {
		f.Fallback = &val
	} else {
		f.Fallback = &Value{} // flagged during construction
	}
	return f
}

// EntityDef maps field names to their definitions.
type EntityDef map[string]Field

// SchemaDef is the input to NewSchema. The scoped form fills Shared and/or
// User; the deprecated flat form fills Entities, which is treated as Shared.
type SchemaDef struct {
	Shared   map[string]EntityDef
	User     map[string]EntityDef
	Entities map[string]EntityDef
}

// reservedFields are generated by the system and may not be declared.
var reservedFields = map[string]bool{
	"id":         true,
	"createTime": true,
	"createdAt":  true,
	"updateTime": true,
	"updatedAt":  true,
	"creator":    true,
	"createdBy":  true,
}

// Schema is the immutable, validated form of a SchemaDef. It exposes the
// shared scope, the user scope, and the merged entity map.
type Schema struct {
	shared   map[string]EntityDef
	user     map[string]EntityDef
	entities map[string]EntityDef
}

// NewSchema validates and freezes a schema definition. It rejects reserved
// field names, entity names declared in both scopes, fields that are neither
// optional nor carry a fallback, and fallbacks whose type does not match the
// field kind.
func NewSchema(def SchemaDef) (*Schema, error) {
	shared := map[string]EntityDef{}
	for name, e := range def.Shared {
		shared[name] = e
	}
	if def.Entities != nil {
		// Deprecated flat form: treated as the shared scope.
		for name, e := range def.Entities {
			if _, dup := shared[name]; dup {
				return nil, Errf(ErrValidation, "entity %q declared twice", name)
			}
			shared[name] = e
		}
	}
	user := map[string]EntityDef{}
	for name, e := range def.User {
		if _, dup := shared[name]; dup {
			return nil, Errf(ErrValidation, "entity %q declared in both shared and user scopes", name)
		}
		user[name] = e
	}

	s := &Schema{
		shared:   shared,
		user:     user,
		entities: map[string]EntityDef{},
	}
	for name, e := range shared {
		s.entities[name] = e
	}
	for name, e := range user {
		s.entities[name] = e
	}
	for _, entity := range sortedKeys(s.entities) {
		for _, field := range sortedKeys(s.entities[entity]) {
			def := s.entities[entity][field]
			if reservedFields[field] {
				return nil, Errf(ErrValidation, "%s.%s: field name %q is reserved", entity, field, field)
			}
			if def.Kind < FieldString || def.Kind > FieldRef {
				return nil, Errf(ErrValidation, "%s.%s: invalid field kind", entity, field)
			}
			if !def.Optional && def.Fallback == nil {
				return nil, Errf(ErrValidation, "%s.%s: non-optional field needs a fallback", entity, field)
			}
			if def.Fallback != nil && !kindMatches(def.Kind, *def.Fallback) {
				return nil, Errf(ErrValidation, "%s.%s: fallback does not match field type %s", entity, field, def.Kind)
			}
		}
	}
	return s, nil
}

// Shared returns the shared-scope entity definitions.
func (s *Schema) Shared() map[string]EntityDef { return s.shared }

// User returns the user-scope entity definitions.
func (s *Schema) User() map[string]EntityDef { return s.user }

// Entities returns the merged entity map across both scopes.
func (s *Schema) Entities() map[string]EntityDef { return s.entities }

// Entity looks up one entity definition.
func (s *Schema) Entity(name string) (EntityDef, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// Validate reports whether the proposed fields satisfy the entity's
// definition: every non-optional field present, every supplied field known
// and of the right runtime type.
func (s *Schema) Validate(entityName string, fields map[string]any) bool {
	return s.CheckRecord(entityName, fields) == nil
}

// CheckRecord is Validate with a detailed error naming the offending field.
func (s *Schema) CheckRecord(entityName string, fields map[string]any) error {
	def, ok := s.entities[entityName]
	if !ok {
		return Errf(ErrSchemaMismatch, "unknown entity %q", entityName)
	}
	for _, name := range sortedKeys(def) {
		fd := def[name]
		if _, present := fields[name]; !present && !fd.Optional {
			return Errf(ErrValidation, "%s: required field %q is missing", entityName, name)
		}
	}
	for _, name := range sortedKeys(fields) {
		fd, known := def[name]
		if !known {
			return Errf(ErrValidation, "%s: field %q is not in the schema", entityName, name)
		}
		v, err := FromAny(fields[name])
		if err != nil {
			return Errf(ErrValidation, "%s.%s: %v", entityName, name, err)
		}
		if !kindMatches(fd.Kind, v) {
			return Errf(ErrValidation, "%s.%s: expected %s, got %s", entityName, name, fd.Kind, v.Kind)
		}
	}
	return nil
}

// kindMatches reports whether a runtime value satisfies a field kind. A ref
// field expects the referenced entity's id in hex form.
func kindMatches(kind FieldKind, v Value) bool {
	switch kind {
	case FieldString:
		return v.Kind == KindString
	case FieldNumber:
		return v.Kind == KindNumber
	case FieldBool:
		return v.Kind == KindBool
	case FieldRef:
		if v.Kind != KindString {
			return false
		}
		_, err := ParseID(v.Str)
		return err == nil
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
