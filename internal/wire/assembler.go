package wire

import (
	"sort"

	"github.com/yukin371/aide/internal/core"
)

// ToolCallAssembler accumulates streamed tool-call fragments keyed by the
// backend-provided index. Name and argument fragments are concatenated in
// arrival order; the argument JSON is only valid once fully assembled, so
// nothing here attempts to parse it.
type ToolCallAssembler struct {
	calls map[int]*core.ToolCall
}

// NewToolCallAssembler creates an empty assembler.
func NewToolCallAssembler() *ToolCallAssembler {
	return &ToolCallAssembler{calls: make(map[int]*core.ToolCall)}
}

// Add folds one delta into the accumulator at index. A delta at a new
// index starts a new call; id overwrites, name and arguments append.
func (a *ToolCallAssembler) Add(index int, id, name, arguments string) {
	call, ok := a.calls[index]
	if !ok {
		call = &core.ToolCall{}
		a.calls[index] = call
	}
	if id != "" {
		call.ID = id
	}
	call.Name += name
	call.Arguments += arguments
}

// Len returns the number of calls accumulated so far.
func (a *ToolCallAssembler) Len() int {
	return len(a.calls)
}

// Assemble returns the accumulated calls in ascending index order. The
// order must be deterministic: argument fragments only form valid JSON in
// their original emission order.
func (a *ToolCallAssembler) Assemble() []core.ToolCall {
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]core.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		calls = append(calls, *a.calls[i])
	}
	return calls
}
