package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// durationPattern accepts the strings time.ParseDuration accepts.
const durationPattern = `^(0|-?([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)$`

var durationType = reflect.TypeOf(time.Duration(0))

// Schema returns the JSON schema of the configuration file. Property names
// follow the YAML keys and durations are described as duration strings,
// matching what InitConfig writes.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     durationPattern,
					Description: "Duration such as 500ms, 30s or 1m30s",
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "evnet Configuration"
	schema.Description = "Configuration schema for the evnet server"
	schema.Version = "1.0.0"
	return schema
}

// SchemaJSON returns Schema as indented JSON terminated by a newline.
func SchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}
