// Package tools provides the tool registry the assistant exposes to the
// model: registration, argument validation, allow/deny policy and the
// built-in editor tool set.
package tools

import (
	"context"
	"encoding/json"

	"github.com/yukin371/aide/internal/core"
)

// Tool is a single callable capability. Params feeds the descriptor
// advertised to the model and the schema the registry validates
// arguments against.
type Tool interface {
	Name() string
	Description() string
	Params() []core.ToolParam
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Descriptor builds the wire descriptor for a tool.
func Descriptor(t Tool) core.ToolDescriptor {
	return core.ToolDescriptor{
		Name:        t.Name(),
		Description: t.Description(),
		Params:      t.Params(),
	}
}
