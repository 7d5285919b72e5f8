// Package editor abstracts the host editor surface the assistant works
// against: the active document, selection state and project file access.
// The orchestration layers depend only on the interface, so a GUI host,
// an LSP bridge or a plain workspace directory can all back it.
package editor

import "context"

// Context is a snapshot of what the user is looking at. Zero values mean
// no file is open.
type Context struct {
	FilePath     string
	Language     string
	SelectedText string
	CursorLine   int
}

// Entry is one directory listing item.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Match is one code search hit.
type Match struct {
	File    string
	Line    int
	Content string
}

// Editor is the host surface the built-in tools operate on. All paths
// are relative to the project root; implementations must reject paths
// that escape it.
type Editor interface {
	// CurrentContext returns a snapshot of the active document.
	CurrentContext() Context

	// ProjectRoot returns the absolute project root path.
	ProjectRoot() string

	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
	CreateFile(path string) error
	DeleteFile(path string) error
	ListDirectory(path string) ([]Entry, error)

	// SearchCode scans project files for a regular expression. An empty
	// filePattern matches every file.
	SearchCode(ctx context.Context, pattern, filePattern string, maxResults int) ([]Match, error)
}
