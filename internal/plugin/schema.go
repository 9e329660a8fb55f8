// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the descriptor schema.
const SchemaID = "https://eva.dev/schemas/plugin.schema.json"

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jschema.Schema
	manifestSchemaErr  error
)

// GenerateSchema generates the JSON Schema of descriptor files from Manifest.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Manifest{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Eva Plugin Descriptor"
	schema.Description = "Schema for <id>.yaml plugin descriptor files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("plugin").Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML descriptor data against the descriptor schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return oops.In("plugin").Errorf("descriptor data is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.In("plugin").Wrapf(err, "invalid YAML")
	}

	manifestSchemaOnce.Do(func() {
		var raw []byte
		raw, manifestSchemaErr = GenerateSchema()
		if manifestSchemaErr != nil {
			return
		}
		manifestSchema, manifestSchemaErr = compileSchema(SchemaID, raw)
	})
	if manifestSchemaErr != nil {
		return manifestSchemaErr
	}

	if err := manifestSchema.Validate(toJSONTypes(doc)); err != nil {
		return oops.In("plugin").Wrapf(err, "schema validation failed")
	}
	return nil
}

func compileSchema(url string, raw []byte) (*jschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, oops.In("plugin").With("schema", url).Wrapf(err, "parse schema JSON")
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.In("plugin").With("schema", url).Wrapf(err, "add schema resource")
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, oops.In("plugin").With("schema", url).Wrapf(err, "compile schema")
	}
	return sch, nil
}

// toJSONTypes converts YAML-decoded values into the shapes the validator
// accepts. yaml.v3 can yield map[any]any for non-string keys.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			if s, ok := k.(string); ok {
				out[s] = toJSONTypes(v)
				continue
			}
			b, _ := json.Marshal(k) //nolint:errchkjson // best effort key rendering
			out[string(b)] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case string, bool, int, int64, uint64, float64, nil:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			var out any
			if err := json.Unmarshal(b, &out); err == nil {
				return out
			}
		}
		return val
	}
}
