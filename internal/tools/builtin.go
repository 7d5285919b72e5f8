package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/yukin371/aide/internal/core"
	"github.com/yukin371/aide/internal/editor"
)

// RegisterBuiltins installs the editor tool set on a registry.
func RegisterBuiltins(registry *Registry, ed editor.Editor) error {
	builtins := []Tool{
		&ReadFileTool{editor: ed},
		&WriteFileTool{editor: ed},
		&CreateFileTool{editor: ed},
		&DeleteFileTool{editor: ed},
		&ListDirectoryTool{editor: ed},
		&SearchCodeTool{editor: ed},
		&EditorContextTool{editor: ed},
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// ReadFileTool returns file contents, optionally sliced to a line range.
type ReadFileTool struct {
	editor editor.Editor
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file in the project. Supports an optional 1-based line range."
}

func (t *ReadFileTool) Params() []core.ToolParam {
	return []core.ToolParam{
		{Name: "path", Type: "string", Description: "File path relative to the project root", Required: true},
		{Name: "line_start", Type: "integer", Description: "First line to return (1-based, optional)"},
		{Name: "line_end", Type: "integer", Description: "Last line to return (inclusive, optional)"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path      string `json:"path"`
		LineStart int    `json:"line_start,omitempty"`
		LineEnd   int    `json:"line_end,omitempty"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}

	content, err := t.editor.ReadFile(params.Path)
	if err != nil {
		return "", err
	}

	if params.LineStart > 0 || params.LineEnd > 0 {
		lines := strings.Split(content, "\n")
		start := params.LineStart
		if start < 1 {
			start = 1
		}
		end := params.LineEnd
		if end < 1 || end > len(lines) {
			end = len(lines)
		}
		if start > end {
			start = end
		}
		content = strings.Join(lines[start-1:end], "\n")
	}

	result, _ := json.Marshal(map[string]string{"path": params.Path, "content": content})
	return string(result), nil
}

// WriteFileTool replaces file contents and reports a change summary
// computed against the previous contents.
type WriteFileTool struct {
	editor editor.Editor
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file, replacing its current contents. Returns a summary of the change."
}

func (t *WriteFileTool) Params() []core.ToolParam {
	return []core.ToolParam{
		{Name: "path", Type: "string", Description: "File path relative to the project root", Required: true},
		{Name: "content", Type: "string", Description: "Complete new file content", Required: true},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}

	// The previous contents may not exist; the diff is then against
	// an empty document.
	previous, _ := t.editor.ReadFile(params.Path)

	if err := t.editor.WriteFile(params.Path, params.Content); err != nil {
		return "", err
	}

	added, removed := changeSummary(previous, params.Content)
	result, _ := json.Marshal(map[string]any{
		"path":          params.Path,
		"status":        "written",
		"chars_added":   added,
		"chars_removed": removed,
	})
	return string(result), nil
}

func changeSummary(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	for _, diff := range dmp.DiffMain(before, after, false) {
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			added += len(diff.Text)
		case diffmatchpatch.DiffDelete:
			removed += len(diff.Text)
		}
	}
	return added, removed
}

// CreateFileTool creates a new empty file.
type CreateFileTool struct {
	editor editor.Editor
}

func (t *CreateFileTool) Name() string { return "create_file" }

func (t *CreateFileTool) Description() string {
	return "Create a new empty file. Fails if the file already exists."
}

func (t *CreateFileTool) Params() []core.ToolParam {
	return []core.ToolParam{
		{Name: "path", Type: "string", Description: "File path relative to the project root", Required: true},
	}
}

func (t *CreateFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if err := t.editor.CreateFile(params.Path); err != nil {
		return "", err
	}
	result, _ := json.Marshal(map[string]string{"path": params.Path, "status": "created"})
	return string(result), nil
}

// DeleteFileTool removes a single file.
type DeleteFileTool struct {
	editor editor.Editor
}

func (t *DeleteFileTool) Name() string { return "delete_file" }

func (t *DeleteFileTool) Description() string {
	return "Delete a file from the project. Directories cannot be deleted."
}

func (t *DeleteFileTool) Params() []core.ToolParam {
	return []core.ToolParam{
		{Name: "path", Type: "string", Description: "File path relative to the project root", Required: true},
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if err := t.editor.DeleteFile(params.Path); err != nil {
		return "", err
	}
	result, _ := json.Marshal(map[string]string{"path": params.Path, "status": "deleted"})
	return string(result), nil
}

// ListDirectoryTool lists one directory level.
type ListDirectoryTool struct {
	editor editor.Editor
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List the entries of a project directory. Directories sort before files."
}

func (t *ListDirectoryTool) Params() []core.ToolParam {
	return []core.ToolParam{
		{Name: "path", Type: "string", Description: "Directory path relative to the project root, defaults to the root"},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path string `json:"path,omitempty"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}

	entries, err := t.editor.ListDirectory(params.Path)
	if err != nil {
		return "", err
	}

	type entryOut struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
		Size  int64  `json:"size"`
	}
	out := make([]entryOut, len(entries))
	for i, e := range entries {
		out[i] = entryOut{Name: e.Name, IsDir: e.IsDir, Size: e.Size}
	}

	result, _ := json.Marshal(map[string]any{"path": params.Path, "entries": out})
	return string(result), nil
}

// SearchCodeTool greps project files for a regular expression.
type SearchCodeTool struct {
	editor editor.Editor
}

func (t *SearchCodeTool) Name() string { return "search_code" }

func (t *SearchCodeTool) Description() string {
	return "Search project files for a regular expression. Returns file, line and matching text."
}

func (t *SearchCodeTool) Params() []core.ToolParam {
	return []core.ToolParam{
		{Name: "pattern", Type: "string", Description: "Regular expression to search for", Required: true},
		{Name: "file_pattern", Type: "string", Description: "Filename glob filter, e.g. *.go (optional)"},
		{Name: "max_results", Type: "integer", Description: "Maximum number of matches, defaults to 100"},
	}
}

func (t *SearchCodeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Pattern     string `json:"pattern"`
		FilePattern string `json:"file_pattern,omitempty"`
		MaxResults  int    `json:"max_results,omitempty"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}

	matches, err := t.editor.SearchCode(ctx, params.Pattern, params.FilePattern, params.MaxResults)
	if err != nil {
		return "", err
	}

	type matchOut struct {
		File    string `json:"file"`
		Line    int    `json:"line"`
		Content string `json:"content"`
	}
	out := make([]matchOut, len(matches))
	for i, m := range matches {
		out[i] = matchOut{File: m.File, Line: m.Line, Content: m.Content}
	}

	result, _ := json.Marshal(map[string]any{"count": len(out), "matches": out})
	return string(result), nil
}

// EditorContextTool exposes the active document snapshot.
type EditorContextTool struct {
	editor editor.Editor
}

func (t *EditorContextTool) Name() string { return "get_editor_context" }

func (t *EditorContextTool) Description() string {
	return "Get the currently open file, cursor position and selected text."
}

func (t *EditorContextTool) Params() []core.ToolParam { return nil }

func (t *EditorContextTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	snapshot := t.editor.CurrentContext()
	result, _ := json.Marshal(map[string]any{
		"file_path":     snapshot.FilePath,
		"language":      snapshot.Language,
		"cursor_line":   snapshot.CursorLine,
		"selected_text": snapshot.SelectedText,
	})
	return string(result), nil
}
