// Vault Tools - read, write, list and search notes under one root directory.
//
// Information Hiding:
// - File I/O implementation details hidden
// - Path containment checks hidden
// - Error handling for file operations abstracted

package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/richinex/strand/internal/dsa"
	"github.com/richinex/strand/model"
)

// DefaultMaxNoteSize bounds note reads and writes.
const DefaultMaxNoteSize = 1024 * 1024 // 1MB

// Vault is a directory of text notes that the note tools are confined to.
type Vault struct {
	root       string
	maxBytes   int64
	extensions []string
}

// NewVault creates a vault rooted at dir. Only files with one of the given
// extensions are listed and searched (".md" and ".txt" when none given).
func NewVault(dir string, maxBytes int64, extensions ...string) *Vault {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxNoteSize
	}
	if len(extensions) == 0 {
		extensions = []string{".md", ".txt"}
	}
	return &Vault{root: dir, maxBytes: maxBytes, extensions: extensions}
}

// Tools returns the note tools bound to this vault.
func (v *Vault) Tools() []Tool {
	return []Tool{
		&ReadNoteTool{vault: v},
		&WriteNoteTool{vault: v},
		&ListNotesTool{vault: v},
		&SearchNotesTool{vault: v},
	}
}

func (v *Vault) isNote(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range v.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// walkNotes calls fn for each note, with its vault-relative slash path.
func (v *Vault) walkNotes(ctx context.Context, fn func(rel, full string) error) error {
	return filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != v.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !v.isNote(path) {
			return nil
		}
		rel, err := filepath.Rel(v.root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), path)
	})
}

// ReadNoteTool reads one note.
type ReadNoteTool struct {
	vault *Vault
}

// Descriptor returns the tool metadata.
func (t *ReadNoteTool) Descriptor() model.ToolDescriptor {
	return model.ToolDescriptor{
		Name:        "read_note",
		Description: "Read the full text of a note in the vault",
		Parameters: []model.ToolParameter{
			{Name: "path", Type: "string", Description: "Vault-relative path of the note", Required: true},
		},
	}
}

// Execute reads the note.
func (t *ReadNoteTool) Execute(_ context.Context, params map[string]any) (ToolResult, error) {
	rel := stringParam(params, "path")
	full, err := resolveInRoot(t.vault.root, rel)
	if err != nil {
		return FailureResult(err), nil
	}

	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return FailureResultf("note does not exist: %s", rel), nil
	}
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read note metadata: %w", err)), nil
	}
	if info.IsDir() {
		return FailureResultf("%s is a folder, not a note", rel), nil
	}
	if info.Size() > t.vault.maxBytes {
		return FailureResultf("note too large: %d bytes (max: %d bytes)", info.Size(), t.vault.maxBytes), nil
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read note: %w", err)), nil
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return SuccessResult(fmt.Sprintf("(note %s is empty)", rel)), nil
	}
	return SuccessResult(string(content)), nil
}

// WriteNoteTool creates or replaces a note, or appends to it.
type WriteNoteTool struct {
	vault *Vault
}

// Descriptor returns the tool metadata.
func (t *WriteNoteTool) Descriptor() model.ToolDescriptor {
	return model.ToolDescriptor{
		Name:        "write_note",
		Description: "Create or overwrite a note in the vault, or append to it",
		Parameters: []model.ToolParameter{
			{Name: "path", Type: "string", Description: "Vault-relative path of the note", Required: true},
			{Name: "content", Type: "string", Description: "Text to write", Required: true},
			{Name: "append", Type: "boolean", Description: "Append instead of overwrite (default: false)", Required: false},
		},
	}
}

// Execute writes the note.
func (t *WriteNoteTool) Execute(_ context.Context, params map[string]any) (ToolResult, error) {
	rel := stringParam(params, "path")
	content := stringParam(params, "content")
	appendMode, _ := params["append"].(bool)

	if int64(len(content)) > t.vault.maxBytes {
		return FailureResultf("content too large: %d bytes (max: %d bytes)", len(content), t.vault.maxBytes), nil
	}
	full, err := resolveInRoot(t.vault.root, rel)
	if err != nil {
		return FailureResult(err), nil
	}
	if !t.vault.isNote(full) {
		return FailureResultf("notes must end in one of %s", strings.Join(t.vault.extensions, ", ")), nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return FailureResult(fmt.Errorf("failed to create folder: %w", err)), nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	verb := "wrote"
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		verb = "appended"
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to open note: %w", err)), nil
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return FailureResult(fmt.Errorf("failed to write note: %w", err)), nil
	}

	return SuccessResult(fmt.Sprintf("Successfully %s %d bytes to %s", verb, len(content), rel)), nil
}

// ListNotesTool lists notes, optionally under a folder.
type ListNotesTool struct {
	vault *Vault
}

// Descriptor returns the tool metadata.
func (t *ListNotesTool) Descriptor() model.ToolDescriptor {
	return model.ToolDescriptor{
		Name:        "list_notes",
		Description: "List the notes in the vault",
		Parameters: []model.ToolParameter{
			{Name: "folder", Type: "string", Description: "Only list notes under this folder", Required: false},
		},
	}
}

// Execute lists the notes.
func (t *ListNotesTool) Execute(ctx context.Context, params map[string]any) (ToolResult, error) {
	prefix := strings.Trim(filepath.ToSlash(stringParam(params, "folder")), "/")
	if prefix != "" {
		if _, err := resolveInRoot(t.vault.root, prefix); err != nil {
			return FailureResult(err), nil
		}
		prefix += "/"
	}

	var notes []string
	err := t.vault.walkNotes(ctx, func(rel, _ string) error {
		if strings.HasPrefix(rel, prefix) {
			notes = append(notes, rel)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		return FailureResult(fmt.Errorf("failed to list notes: %w", err)), nil
	}
	if len(notes) == 0 {
		return SuccessResult("No notes found."), nil
	}
	sort.Strings(notes)
	return SuccessResult(fmt.Sprintf("%d note(s):\n%s", len(notes), strings.Join(notes, "\n"))), nil
}

// SearchNotesTool finds lines containing a query, case-insensitively.
type SearchNotesTool struct {
	vault *Vault
}

// Descriptor returns the tool metadata.
func (t *SearchNotesTool) Descriptor() model.ToolDescriptor {
	return model.ToolDescriptor{
		Name:        "search_notes",
		Description: "Search all notes for lines containing the query (case-insensitive)",
		Parameters: []model.ToolParameter{
			{Name: "query", Type: "string", Description: "Text to look for", Required: true},
			{Name: "max_results", Type: "integer", Description: "Maximum matching lines (default: 50)", Required: false},
		},
	}
}

// Execute searches the vault.
func (t *SearchNotesTool) Execute(ctx context.Context, params map[string]any) (ToolResult, error) {
	query := strings.TrimSpace(stringParam(params, "query"))
	if query == "" {
		return FailureResultf("query cannot be empty"), nil
	}
	limit := intParam(params, "max_results", 50)
	if limit <= 0 {
		limit = 50
	}

	var matches []string
	errLimit := fmt.Errorf("limit reached")
	err := t.vault.walkNotes(ctx, func(rel, full string) error {
		data, err := os.ReadFile(full)
		if err != nil || int64(len(data)) > t.vault.maxBytes {
			return nil
		}
		doc := string(data)
		lineNums := dsa.NewLineIndex(doc).Lines(query)
		if len(lineNums) == 0 {
			return nil
		}
		lines := strings.Split(doc, "\n")
		for _, n := range lineNums {
			matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, n, strings.TrimSpace(lines[n-1])))
			if len(matches) >= limit {
				return errLimit
			}
		}
		return nil
	})
	if err != nil && err != errLimit {
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		return FailureResult(fmt.Errorf("search failed: %w", err)), nil
	}
	if len(matches) == 0 {
		return SuccessResult(fmt.Sprintf("No matches for %q.", query)), nil
	}
	return SuccessResult(strings.Join(matches, "\n")), nil
}
