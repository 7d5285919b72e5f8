package wire

import (
	"encoding/json"
	"testing"
)

func TestAssembleSingleCall(t *testing.T) {
	a := NewToolCallAssembler()
	a.Add(0, "call_1", "read_file", "")
	a.Add(0, "", "", `{"pa`)
	a.Add(0, "", "", `th":"main.go"}`)

	calls := a.Assemble()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "read_file" {
		t.Errorf("call = %+v", calls[0])
	}
	if !json.Valid([]byte(calls[0].Arguments)) {
		t.Errorf("assembled arguments are not valid JSON: %s", calls[0].Arguments)
	}
}

func TestAssembleNameFragments(t *testing.T) {
	a := NewToolCallAssembler()
	a.Add(0, "call_1", "sear", "")
	a.Add(0, "", "ch_code", `{}`)

	calls := a.Assemble()
	if calls[0].Name != "search_code" {
		t.Errorf("name = %q, want search_code", calls[0].Name)
	}
}

func TestAssembleOrderedByIndex(t *testing.T) {
	a := NewToolCallAssembler()
	// Deltas can interleave across indexes.
	a.Add(1, "call_b", "write_file", `{"path":"b"}`)
	a.Add(0, "call_a", "read_file", `{"path":"a"}`)
	a.Add(2, "call_c", "list_directory", `{}`)

	calls := a.Assemble()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	wantIDs := []string{"call_a", "call_b", "call_c"}
	for i, id := range wantIDs {
		if calls[i].ID != id {
			t.Errorf("calls[%d].ID = %q, want %q", i, calls[i].ID, id)
		}
	}
}

func TestIDOverwritesNotAppends(t *testing.T) {
	a := NewToolCallAssembler()
	a.Add(0, "call_1", "read_file", "")
	a.Add(0, "call_1", "", `{}`)

	if got := a.Assemble()[0].ID; got != "call_1" {
		t.Errorf("ID = %q, want call_1", got)
	}
}

func TestLen(t *testing.T) {
	a := NewToolCallAssembler()
	if a.Len() != 0 {
		t.Errorf("empty Len() = %d", a.Len())
	}
	a.Add(0, "x", "", "")
	a.Add(0, "", "", "frag")
	a.Add(3, "y", "", "")
	if a.Len() != 2 {
		t.Errorf("Len() = %d, want 2", a.Len())
	}
}
