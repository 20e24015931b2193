package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for the graph artifacts consumed by the
// run stage. Validating the documents before execution catches truncated or
// hand-edited artifacts before any build starts.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry preloaded with the artifact schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.RegisterSchema("graph", builtinGraphSchema)
	sr.RegisterSchema("waves", builtinWavesSchema)

	return sr
}

// RegisterSchema compiles and registers a CUE schema under the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateGraphArtifact validates a dependency-graph document on disk.
func (sr *SchemaRegistry) ValidateGraphArtifact(ctx context.Context, path string) error {
	return sr.validateFile(ctx, "graph", path)
}

// ValidateWavesArtifact validates a build-waves document on disk.
func (sr *SchemaRegistry) ValidateWavesArtifact(ctx context.Context, path string) error {
	return sr.validateFile(ctx, "waves", path)
}

func (sr *SchemaRegistry) validateFile(ctx context.Context, schemaName, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}
	if err := sr.ValidateAgainstSchema(ctx, schemaName, doc); err != nil {
		return fmt.Errorf("artifact %s: %w", path, err)
	}
	return nil
}

// Built-in schema definitions

const builtinGraphSchema = `
// Schema for the dependency-graph artifact
{
	schema_version: "v1"
	generated_at:   string
	sources: {...}
	metrics: {
		package_count: int & >=0
		edge_count:    int & >=0
		wave_count:    int & >=0
		...
	}
	nodes: [...{
		atom:                         string & !=""
		tier:                         string
		in_degree:                    int & >=0
		out_degree:                   int & >=0
		transitive_deps:              int & >=0
		depended_by_transitive:       int & >=0
		critical_path_score:          number & >=0 & <=1
		build_wave:                   int & >=0
		estimated_build_time_minutes: int & >=0
	}]
	edges: [...{
		from: string & !=""
		to:   string & !=""
		kind: "BDEPEND" | "RDEPEND"
	}]
	strongly_connected_components: [...[...string]]
	build_order: [...string]
	build_waves: [...[...string]]
}
`

const builtinWavesSchema = `
// Schema for the build-waves artifact
{
	schema_version: "v1"
	generated_at:   string
	wave_count:     int & >=0
	waves: [...{
		wave:  int & >=0
		count: int & >=1
		packages: [...string & !=""]
	}]
}
`
