package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache struct {
	once sync.Once
	data []byte
	err  error
}

// JSONSchema returns the JSON Schema describing the configuration file
// format, suitable for editor validation and the config-schema CLI
// command.
func JSONSchema() ([]byte, error) {
	schemaCache.once.Do(func() {
		reflector := &jsonschema.Reflector{FieldNameTag: "yaml"}
		schemaCache.data, schemaCache.err = json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	})
	return schemaCache.data, schemaCache.err
}
