package core

import (
	"strings"
	"testing"
)

func usersSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(SchemaDef{
		Shared: map[string]EntityDef{
			"users": {
				"name": StringField().WithFallback(""),
				"age":  NumberField().AsOptional(),
			},
		},
	})
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return s
}

// TestSchemaReservedFields verifies reserved names are rejected at
// construction.
func TestSchemaReservedFields(t *testing.T) {
	for _, name := range []string{"id", "createTime", "createdAt", "updateTime", "updatedAt", "creator", "createdBy"} {
		_, err := NewSchema(SchemaDef{
			Shared: map[string]EntityDef{
				"things": {name: StringField().WithFallback("")},
			},
		})
		if KindOf(err) != ErrValidation {
			t.Fatalf("reserved field %q not rejected: %v", name, err)
		}
	}
}

// TestSchemaScopeUniqueness verifies an entity name may not appear in both
// scopes.
func TestSchemaScopeUniqueness(t *testing.T) {
	_, err := NewSchema(SchemaDef{
		Shared: map[string]EntityDef{"users": {"name": StringField().WithFallback("")}},
		User:   map[string]EntityDef{"users": {"name": StringField().WithFallback("")}},
	})
	if KindOf(err) != ErrValidation {
		t.Fatalf("duplicate entity across scopes not rejected: %v", err)
	}
}

// TestSchemaLegacyEntities verifies the flat form is accepted as the shared
// scope.
func TestSchemaLegacyEntities(t *testing.T) {
	s, err := NewSchema(SchemaDef{
		Entities: map[string]EntityDef{"users": {"name": StringField().WithFallback("")}},
	})
	if err != nil {
		t.Fatalf("legacy form rejected: %v", err)
	}
	if _, ok := s.Shared()["users"]; !ok {
		t.Fatal("legacy entities not merged into shared scope")
	}
	if _, ok := s.Entities()["users"]; !ok {
		t.Fatal("legacy entities missing from merged view")
	}
}

// TestSchemaFallbackRules verifies a non-optional field needs a fallback and
// fallback types must match the field kind.
func TestSchemaFallbackRules(t *testing.T) {
	_, err := NewSchema(SchemaDef{
		Shared: map[string]EntityDef{"users": {"name": StringField()}},
	})
	if KindOf(err) != ErrValidation {
		t.Fatalf("non-optional field without fallback not rejected: %v", err)
	}
	_, err = NewSchema(SchemaDef{
		Shared: map[string]EntityDef{"users": {"name": StringField().WithFallback(12)}},
	})
	if KindOf(err) != ErrValidation {
		t.Fatalf("fallback type mismatch not rejected: %v", err)
	}
}

// TestSchemaValidate exercises required-field and runtime type checks.
func TestSchemaValidate(t *testing.T) {
	s := usersSchema(t)
	if !s.Validate("users", map[string]any{"name": "Alice", "age": 30}) {
		t.Fatal("valid record rejected")
	}
	if !s.Validate("users", map[string]any{"name": "Bob"}) {
		t.Fatal("record without optional field rejected")
	}
	if s.Validate("users", map[string]any{"age": 10}) {
		t.Fatal("missing required field accepted")
	}
	err := s.CheckRecord("users", map[string]any{"age": 10})
	if KindOf(err) != ErrValidation || !strings.Contains(err.Error(), "name") {
		t.Fatalf("error should name the missing field: %v", err)
	}
	if s.Validate("users", map[string]any{"name": 7}) {
		t.Fatal("type mismatch accepted")
	}
	if s.Validate("users", map[string]any{"name": "x", "extra": 1}) {
		t.Fatal("unknown field accepted")
	}
	if s.Validate("ghosts", map[string]any{}) {
		t.Fatal("unknown entity accepted")
	}
}

// TestSchemaRefFields verifies ref fields expect a hex entity id and record
// their target.
func TestSchemaRefFields(t *testing.T) {
	s, err := NewSchema(SchemaDef{
		Shared: map[string]EntityDef{
			"posts": {
				"author": RefField("users").AsOptional(),
			},
			"users": {"name": StringField().WithFallback("")},
		},
	})
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	if s.Entities()["posts"]["author"].Ref != "users" {
		t.Fatal("ref target lost")
	}
	if !s.Validate("posts", map[string]any{"author": NewEntityID().Hex()}) {
		t.Fatal("hex id rejected for ref field")
	}
	if s.Validate("posts", map[string]any{"author": "not-an-id"}) {
		t.Fatal("malformed ref accepted")
	}
}

// TestParseSchemaYAML verifies the YAML form builds the same schema as the
// DSL, including scoped and legacy documents.
func TestParseSchemaYAML(t *testing.T) {
	doc := `
shared:
  users:
    name: { type: string, fallback: "" }
    age: { type: number, optional: true }
user:
  settings:
    theme: { type: string, fallback: "dark" }
`
	s, err := ParseSchemaYAML([]byte(doc))
	if err != nil {
		t.Fatalf("ParseSchemaYAML failed: %v", err)
	}
	if len(s.Shared()) != 1 || len(s.User()) != 1 || len(s.Entities()) != 2 {
		t.Fatalf("unexpected scope sizes: shared=%d user=%d merged=%d",
			len(s.Shared()), len(s.User()), len(s.Entities()))
	}
	age := s.Entities()["users"]["age"]
	if age.Kind != FieldNumber || !age.Optional {
		t.Fatalf("age parsed wrong: %+v", age)
	}
	fb := s.Entities()["settings"]["theme"].Fallback
	if fb == nil || fb.Str != "dark" {
		t.Fatalf("theme fallback parsed wrong: %+v", fb)
	}

	if _, err := ParseSchemaYAML([]byte("shared:\n  u:\n    f: { type: widget }\n")); err == nil {
		t.Fatal("unknown field type accepted")
	}
}
