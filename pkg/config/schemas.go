package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema names known to the registry.
const (
	SchemaProfile = "profile"
	SchemaTrait   = "trait"
)

// SchemaRegistry holds CUE schemas used to check profile and trait documents.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-ins are constants; a compile error here is a programming error.
	if err := sr.RegisterSchema(SchemaProfile, "#Profile", builtinProfileSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaTrait, "#Trait", builtinTraitSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles source and stores the definition named def under
// name, replacing any previous schema with that name.
func (sr *SchemaRegistry) RegisterSchema(name, def, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	schema := val.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s: definition %s not found", name, def)
	}
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}

	sr.schemas[name] = schema
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateDocument checks doc against the named schema.
func (sr *SchemaRegistry) ValidateDocument(schemaName string, doc *Document) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	sr.mu.Lock()
	dataVal := sr.ctx.Encode(doc.ToMap())
	sr.mu.Unlock()
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns the registered schema names in lexical order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinProfileSchema = `
#Name: string & =~"^[A-Za-z0-9][A-Za-z0-9_.-]*$"

#Packages: {[string]: [...string]}

#Profile: {
	// Traits are merged in order; earlier traits win.
	traits?: [...#Name] | #Name

	bootstrap?: bool

	// Each pillar runs all of its steps or an ordered subset.
	pillars?: {[#Name]: =~"(?i)^all$" | bool | [...#Name]}

	packages?: #Packages

	...
}
`

const builtinTraitSchema = `
#Packages: {[string]: [...string]}

#Trait: {
	packages?: #Packages

	...
}
`
