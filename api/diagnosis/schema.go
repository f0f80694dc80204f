package diagnosis

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaJSON is the strict diagnosis output contract. Additional
// properties are rejected; array and numeric bounds match the Result
// validator.
//
//go:embed DiagnosisResult.schema.json
var SchemaJSON []byte

const schemaResource = "DiagnosisResult.schema.json"

// CompileSchema compiles the embedded diagnosis result schema.
func CompileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, bytes.NewReader(SchemaJSON)); err != nil {
		return nil, fmt.Errorf("add diagnosis schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile diagnosis schema: %w", err)
	}
	return schema, nil
}
