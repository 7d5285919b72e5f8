package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yukin371/aide/internal/core"
)

// stubTool is a minimal tool for registry tests.
type stubTool struct {
	name    string
	params  []core.ToolParam
	result  string
	execErr error
}

func (t *stubTool) Name() string             { return t.name }
func (t *stubTool) Description() string      { return "stub " + t.name }
func (t *stubTool) Params() []core.ToolParam { return t.params }

func (t *stubTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.result, t.execErr
}

func mustRegister(t *testing.T, r *Registry, tool Tool) {
	t.Helper()
	if err := r.Register(tool); err != nil {
		t.Fatalf("Register(%s) error = %v", tool.Name(), err)
	}
}

func decodeError(t *testing.T, result string) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		t.Fatalf("result is not JSON: %q", result)
	}
	return payload["error"]
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, name := range names {
		mustRegister(t, r, &stubTool{name: name, result: "{}"})
	}

	descriptors := r.List()
	if len(descriptors) != len(names) {
		t.Fatalf("List() len = %d", len(descriptors))
	}
	for i, name := range names {
		if descriptors[i].Name != name {
			t.Errorf("descriptors[%d].Name = %s, want %s", i, descriptors[i].Name, name)
		}
	}
}

func TestCallUnknownToolReturnsErrorPayload(t *testing.T) {
	r := NewRegistry()

	result := r.Call(context.Background(), "nope", "{}")
	if msg := decodeError(t, result); msg == "" {
		t.Errorf("expected error payload, got %q", result)
	}
}

func TestCallInvalidArgumentsJSON(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubTool{name: "echo", result: "{}"})

	result := r.Call(context.Background(), "echo", "{broken")
	if msg := decodeError(t, result); msg == "" {
		t.Errorf("expected error payload, got %q", result)
	}
}

func TestCallSchemaValidation(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubTool{
		name:   "read_file",
		result: "{}",
		params: []core.ToolParam{{Name: "path", Type: "string", Required: true}},
	})

	// Missing required parameter.
	result := r.Call(context.Background(), "read_file", "{}")
	if msg := decodeError(t, result); msg == "" {
		t.Errorf("missing required arg accepted: %q", result)
	}

	// Wrong type.
	result = r.Call(context.Background(), "read_file", `{"path":42}`)
	if msg := decodeError(t, result); msg == "" {
		t.Errorf("wrong-typed arg accepted: %q", result)
	}

	// Valid.
	result = r.Call(context.Background(), "read_file", `{"path":"main.go"}`)
	if result != "{}" {
		t.Errorf("valid call result = %q", result)
	}
}

func TestCallExecutionFailureIsPayloadNotError(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubTool{name: "flaky", execErr: errors.New("disk on fire")})

	result := r.Call(context.Background(), "flaky", "{}")
	msg := decodeError(t, result)
	if msg == "" {
		t.Fatalf("expected error payload, got %q", result)
	}
}

func TestCallWrapsNonJSONResult(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubTool{name: "plain", result: "just some text"})

	result := r.Call(context.Background(), "plain", "{}")

	var payload map[string]string
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		t.Fatalf("wrapped result is not JSON: %q", result)
	}
	if payload["result"] != "just some text" {
		t.Errorf("wrapped result = %q", payload["result"])
	}
}

func TestCallEmptyArgumentsTreatedAsEmptyObject(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubTool{name: "noargs", result: `{"ok":true}`})

	result := r.Call(context.Background(), "noargs", "")
	if result != `{"ok":true}` {
		t.Errorf("result = %q", result)
	}
}

func TestPolicyDeny(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubTool{name: "read_file", result: "{}"})
	mustRegister(t, r, &stubTool{name: "delete_file", result: "{}"})

	r.SetPolicy(&Policy{Deny: []string{"delete_file"}})

	descriptors := r.List()
	for _, desc := range descriptors {
		if desc.Name == "delete_file" {
			t.Error("denied tool still advertised")
		}
	}

	result := r.Call(context.Background(), "delete_file", "{}")
	if msg := decodeError(t, result); msg == "" {
		t.Errorf("denied tool executed: %q", result)
	}

	if result := r.Call(context.Background(), "read_file", "{}"); result != "{}" {
		t.Errorf("allowed tool blocked: %q", result)
	}
}

func TestPolicyAllowListDenyWins(t *testing.T) {
	policy := &Policy{Allow: []string{"read_file"}, Deny: []string{"read_file"}}
	if policy.Allowed("read_file") {
		t.Error("deny did not win over allow")
	}

	policy = &Policy{Allow: []string{"read_file"}}
	if policy.Allowed("write_file") {
		t.Error("tool outside allow list permitted")
	}
	if !policy.Allowed("read_file") {
		t.Error("allowed tool rejected")
	}
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := "allow:\n  - read_file\n  - search_code\ndeny:\n  - delete_file\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if !policy.Allowed("read_file") {
		t.Error("read_file should be allowed")
	}
	if policy.Allowed("delete_file") {
		t.Error("delete_file should be denied")
	}
	if policy.Allowed("write_file") {
		t.Error("write_file is outside the allow list")
	}
}

func TestLoadPolicyMissingFileAllowsAll(t *testing.T) {
	policy, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if !policy.Allowed("anything") {
		t.Error("default policy should allow all")
	}
}

func TestReregisterKeepsPosition(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubTool{name: "a", result: "{}"})
	mustRegister(t, r, &stubTool{name: "b", result: "{}"})
	mustRegister(t, r, &stubTool{name: "a", result: `{"v":2}`})

	descriptors := r.List()
	if len(descriptors) != 2 {
		t.Fatalf("List() len = %d after re-register", len(descriptors))
	}
	if descriptors[0].Name != "a" {
		t.Errorf("descriptors[0] = %s, want a", descriptors[0].Name)
	}
	if got := r.Call(context.Background(), "a", "{}"); got != `{"v":2}` {
		t.Errorf("re-registered tool result = %q", got)
	}
}
