package query

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// Description is the listing form of an entry, with its row schema.
type Description struct {
	*Entry
	Schema *jsonschema.Schema `json:"schema"`
}

// JSONSchema reflects the row shape of an entry into a JSON schema.
func (e *Entry) JSONSchema() *jsonschema.Schema {
	if e.Shape == nil {
		return nil
	}
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.ReflectFromType(reflect.TypeOf(e.Shape))
}

// Describe lists every entry together with its schema.
func (c *Catalog) Describe() []Description {
	entries := c.List()
	out := make([]Description, len(entries))
	for i, e := range entries {
		out[i] = Description{Entry: e, Schema: e.JSONSchema()}
	}
	return out
}
