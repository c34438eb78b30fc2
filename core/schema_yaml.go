package core

// core/schema_yaml.go — YAML form of the schema DSL so deployments can ship
// the entity model as a config file next to the client config.

import (
	"os"

	"gopkg.in/yaml.v3"

	"trisync/pkg/utils"
)

type yamlField struct {
	Type     string `yaml:"type"`
	Ref      string `yaml:"ref"`
	Optional bool   `yaml:"optional"`
	Fallback *any   `yaml:"fallback"`
}

type yamlSchema struct {
	Shared   map[string]map[string]yamlField `yaml:"shared"`
	User     map[string]map[string]yamlField `yaml:"user"`
	Entities map[string]map[string]yamlField `yaml:"entities"` // deprecated flat form
}

// ParseSchemaYAML builds a schema from a YAML document using the same rules
// as NewSchema.
func ParseSchemaYAML(data []byte) (*Schema, error) {
	var doc yamlSchema
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, WrapErr(ErrValidation, err, "parse schema yaml")
	}
	def := SchemaDef{}
	var convErr error
	convert := func(scope map[string]map[string]yamlField) map[string]EntityDef {
		if scope == nil {
			return nil
		}
		out := map[string]EntityDef{}
		for entity, fields := range scope {
			ed := EntityDef{}
			for name, yf := range fields {
				f, err := yf.field()
				if err != nil && convErr == nil {
					convErr = utils.Wrapf(err, "%s.%s", entity, name)
				}
				ed[name] = f
			}
			out[entity] = ed
		}
		return out
	}
	def.Shared = convert(doc.Shared)
	def.User = convert(doc.User)
	def.Entities = convert(doc.Entities)
	if convErr != nil {
		return nil, convErr
	}
	return NewSchema(def)
}

// LoadSchemaFile reads and parses a YAML schema file.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.Wrap(err, "read schema file")
	}
	return ParseSchemaYAML(data)
}

func (yf yamlField) field() (Field, error) {
	var f Field
	switch yf.Type {
	case "string":
		f = StringField()
	case "number":
		f = NumberField()
	case "boolean", "bool":
		f = BoolField()
	case "ref":
		if yf.Ref == "" {
			return f, Errf(ErrValidation, "ref field needs a target entity")
		}
		f = RefField(yf.Ref)
	default:
		return f, Errf(ErrValidation, "unknown field type %q", yf.Type)
	}
	if yf.Optional {
		f = f.AsOptional()
	}
	if yf.Fallback != nil {
		fb := *yf.Fallback
		if n, ok := fb.(int); ok {
			fb = float64(n)
		}
		f = f.WithFallback(fb)
	}
	return f, nil
}
