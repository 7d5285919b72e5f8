package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yukin371/aide/internal/core"
)

// Registry holds the registered tools. Registration order is preserved
// so List and the descriptors sent to the model are stable across runs.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	policy  *Policy
}

// NewRegistry creates an empty registry with an allow-all policy.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		policy:  &Policy{},
	}
}

// SetPolicy installs the allow/deny policy. A nil policy allows all.
func (r *Registry) SetPolicy(policy *Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if policy == nil {
		policy = &Policy{}
	}
	r.policy = policy
}

// Register adds a tool. Registering the same name twice replaces the
// tool but keeps its original position.
func (r *Registry) Register(tool Tool) error {
	schema, err := compileParamSchema(tool.Name(), tool.Params())
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = schema
	return nil
}

// List returns descriptors for all allowed tools in registration order.
func (r *Registry) List() []core.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]core.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		if !r.policy.Allowed(name) {
			continue
		}
		descriptors = append(descriptors, Descriptor(r.tools[name]))
	}
	return descriptors
}

// Call executes a tool by name and always returns a JSON document. Tool
// failures never surface as Go errors: an unknown tool, denied tool,
// invalid arguments or execution failure all come back as an error
// payload the model can read and react to.
func (r *Registry) Call(ctx context.Context, name, argsJSON string) string {
	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	allowed := r.policy.Allowed(name)
	r.mu.RUnlock()

	if !ok {
		return errorResult(&core.ToolError{Tool: name, Err: fmt.Errorf("unknown tool")})
	}
	if !allowed {
		return errorResult(&core.ToolError{Tool: name, Err: fmt.Errorf("denied by policy")})
	}

	if strings.TrimSpace(argsJSON) == "" {
		argsJSON = "{}"
	}

	var args any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return errorResult(&core.ToolError{Tool: name, Err: fmt.Errorf("invalid arguments: %w", err)})
	}
	if err := schema.Validate(args); err != nil {
		return errorResult(&core.ToolError{Tool: name, Err: fmt.Errorf("invalid arguments: %w", err)})
	}

	result, err := tool.Execute(ctx, json.RawMessage(argsJSON))
	if err != nil {
		return errorResult(&core.ToolError{Tool: name, Err: err})
	}

	// Non-JSON output is wrapped so the tool result message is always a
	// JSON document.
	if json.Valid([]byte(result)) {
		return result
	}
	wrapped, _ := json.Marshal(map[string]string{"result": result})
	return string(wrapped)
}

func errorResult(err error) string {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(payload)
}

// compileParamSchema builds and compiles the object schema implied by a
// tool's parameter list.
func compileParamSchema(name string, params []core.ToolParam) (*jsonschema.Schema, error) {
	properties := make(map[string]any, len(params))
	required := make([]string, 0)
	for _, p := range params {
		properties[p.Name] = map[string]any{"type": p.Type}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	url := "tool://" + name
	if err := compiler.AddResource(url, strings.NewReader(string(doc))); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
