package editor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/saracen/walker"
)

// blocked directories never exposed through the tool surface.
var blockedDirs = []string{".git", ".env", "node_modules", ".vscode", ".idea"}

// Workspace implements Editor over a plain directory tree. The editor
// context is pushed in by the host (CLI or IDE bridge) via SetContext.
type Workspace struct {
	root string

	mu      sync.RWMutex
	current Context
}

// NewWorkspace creates a workspace rooted at dir. The root is resolved
// to an absolute path once so traversal checks compare like with like.
func NewWorkspace(dir string) (*Workspace, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}
	return &Workspace{root: root}, nil
}

// SetContext records the active document snapshot.
func (w *Workspace) SetContext(ctx Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = ctx
}

// CurrentContext returns the last pushed document snapshot.
func (w *Workspace) CurrentContext() Context {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ProjectRoot returns the absolute root path.
func (w *Workspace) ProjectRoot() string {
	return w.root
}

// resolve validates a tool-supplied path and returns its absolute form.
// The separator suffix on the prefix check keeps /proj from matching
// /proj-evil.
func (w *Workspace) resolve(inputPath string) (string, error) {
	absPath, err := filepath.Abs(filepath.Join(w.root, inputPath))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if absPath != w.root && !strings.HasPrefix(absPath, w.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes project root: %s", inputPath)
	}

	rel, _ := filepath.Rel(w.root, absPath)
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		for _, blocked := range blockedDirs {
			if part == blocked {
				return "", fmt.Errorf("access to %s is blocked", blocked)
			}
		}
	}

	return absPath, nil
}

func (w *Workspace) ReadFile(path string) (string, error) {
	safePath, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(safePath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(content), nil
}

func (w *Workspace) WriteFile(path, content string) error {
	safePath, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(safePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// CreateFile creates an empty file, including missing parent
// directories. Creating an existing file is an error so the model
// cannot silently truncate.
func (w *Workspace) CreateFile(path string) error {
	safePath, err := w.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(safePath); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(safePath), 0755); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	file, err := os.OpenFile(safePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return file.Close()
}

// DeleteFile removes a single file. Directories are refused.
func (w *Workspace) DeleteFile(path string) error {
	safePath, err := w.resolve(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(safePath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("refusing to delete directory: %s", path)
	}
	if err := os.Remove(safePath); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (w *Workspace) ListDirectory(path string) ([]Entry, error) {
	if path == "" {
		path = "."
	}
	safePath, err := w.resolve(path)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(safePath)
	if err != nil {
		return nil, fmt.Errorf("list directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if isBlockedName(de.Name()) {
			continue
		}
		entry := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func isBlockedName(name string) bool {
	for _, blocked := range blockedDirs {
		if name == blocked {
			return true
		}
	}
	return false
}

// errLimitReached stops the walk early once enough matches are found.
var errLimitReached = errors.New("result limit reached")

// SearchCode walks the tree concurrently and greps each regular file.
// Results are sorted by file and line so output is deterministic despite
// the parallel walk.
func (w *Workspace) SearchCode(ctx context.Context, pattern, filePattern string, maxResults int) ([]Match, error) {
	if maxResults <= 0 {
		maxResults = 100
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}

	var (
		mu      sync.Mutex
		matches []Match
	)

	walkFn := func(pathname string, info os.FileInfo) error {
		if info.IsDir() {
			if isBlockedName(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if filePattern != "" {
			matched, err := filepath.Match(filePattern, info.Name())
			if err != nil || !matched {
				return nil
			}
		}

		mu.Lock()
		full := len(matches) >= maxResults
		mu.Unlock()
		if full {
			return errLimitReached
		}

		fileMatches, err := searchFile(pathname, w.root, re, maxResults)
		if err != nil {
			return nil
		}

		mu.Lock()
		matches = append(matches, fileMatches...)
		mu.Unlock()
		return nil
	}

	errCb := walker.WithErrorCallback(func(pathname string, err error) error {
		if errors.Is(err, errLimitReached) {
			return err
		}
		// Unreadable entries are skipped, not fatal.
		return nil
	})

	if err := walker.WalkWithContext(ctx, w.root, walkFn, errCb); err != nil && !errors.Is(err, errLimitReached) {
		return nil, fmt.Errorf("walk: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].File != matches[j].File {
			return matches[i].File < matches[j].File
		}
		return matches[i].Line < matches[j].Line
	})
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

func searchFile(pathname, root string, re *regexp.Regexp, maxResults int) ([]Match, error) {
	file, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	relPath, err := filepath.Rel(root, pathname)
	if err != nil {
		relPath = pathname
	}

	var matches []Match
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, Match{
				File:    filepath.ToSlash(relPath),
				Line:    lineNum,
				Content: strings.TrimSpace(line),
			})
			if len(matches) >= maxResults {
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
