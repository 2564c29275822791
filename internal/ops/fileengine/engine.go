// Package fileengine implements the Operations Service's file primitives:
// directory listing, whole-file and windowed reads, and create/edit/append
// writes with parent-directory materialization.
package fileengine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"
)

// WindowSize is the fixed length, in characters, of one streamed read chunk.
const WindowSize = 1024

// Kind discriminates a file descriptor entry.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Descriptor describes one directory entry for list_directory results.
type Descriptor struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Kind        Kind      `json:"kind"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
	Permissions string    `json:"permissions"`
}

// NotFoundError, DirectoryError, FileError, and ExistsError map to the
// PATH_NOT_FOUND, NOT_A_DIRECTORY, NOT_A_FILE, and FILE_EXISTS operation
// error codes respectively; the dispatch layer translates them.
type NotFoundError struct{ Path string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("path not found: %s", e.Path) }

type DirectoryError struct{ Path string }

func (e *DirectoryError) Error() string { return fmt.Sprintf("not a directory: %s", e.Path) }

type FileError struct{ Path string }

func (e *FileError) Error() string { return fmt.Sprintf("not a file: %s", e.Path) }

type ExistsError struct{ Path string }

func (e *ExistsError) Error() string { return fmt.Sprintf("file already exists: %s", e.Path) }

// Engine implements the File Engine. It is stateless between requests.
type Engine struct{}

// New returns a ready-to-use Engine.
func New() *Engine { return &Engine{} }

// ListDirectory enumerates the immediate children of path. Ordering is
// undefined; callers must not depend on it. Symbolic links in path are
// resolved, so descriptor paths are physical paths; the other file
// operations act on the path as given.
func (e *Engine) ListDirectory(path string) ([]Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, &DirectoryError{Path: path}
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	descriptors := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		entryInfo, err := entry.Info()
		if err != nil {
			continue
		}
		kind := KindFile
		if entry.IsDir() {
			kind = KindDirectory
		}
		descriptors = append(descriptors, Descriptor{
			Name:        entry.Name(),
			Path:        filepath.Join(path, entry.Name()),
			Kind:        kind,
			Size:        entryInfo.Size(),
			ModifiedAt:  entryInfo.ModTime(),
			Permissions: permissionString(entryInfo.Mode()),
		})
	}
	return descriptors, nil
}

// ReadFile reads the whole file as UTF-8 text. size is the character count,
// not the byte length.
func (e *Engine) ReadFile(path string) (content string, size int, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", 0, &NotFoundError{Path: path}
		}
		return "", 0, statErr
	}
	if info.IsDir() {
		return "", 0, &FileError{Path: path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	content = string(data)
	return content, utf8.RuneCountInString(content), nil
}

// ReadFileWindows reads the whole file and splits it into fixed
// WindowSize-character windows, in order. An empty file yields a zero-length
// slice; callers emit only the terminal sentinel in that case.
func (e *Engine) ReadFileWindows(path string) ([]string, error) {
	content, _, err := e.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, nil
	}

	runes := []rune(content)
	windows := make([]string, 0, (len(runes)/WindowSize)+1)
	for start := 0; start < len(runes); start += WindowSize {
		end := start + WindowSize
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
	}
	return windows, nil
}

// CreateFile writes content to a new path, materializing missing parent
// directories. It fails with ExistsError if path already exists.
func (e *Engine) CreateFile(path, content string) (bytesWritten int, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return 0, &ExistsError{Path: path}
	} else if !os.IsNotExist(statErr) {
		return 0, statErr
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return 0, err
	}
	return len(content), nil
}

// EditFile overwrites an existing file's content. The target must already
// exist as a regular file.
func (e *Engine) EditFile(path, content string) (bytesWritten int, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return 0, &NotFoundError{Path: path}
		}
		return 0, statErr
	}
	if info.IsDir() {
		return 0, &FileError{Path: path}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return 0, err
	}
	return len(content), nil
}

// AppendFile appends content to an existing file. The target must already
// exist as a regular file.
func (e *Engine) AppendFile(path, content string) (bytesWritten int, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return 0, &NotFoundError{Path: path}
		}
		return 0, statErr
	}
	if info.IsDir() {
		return 0, &FileError{Path: path}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// permissionString renders a POSIX-style rwx triple for owner/group/other
// from a file mode. Go's os.FileMode already carries POSIX bits on every
// platform this service targets, so no access-probe fallback is needed.
func permissionString(mode os.FileMode) string {
	const rwx = "rwxrwxrwx"
	perm := mode.Perm()
	out := make([]byte, 9)
	for i := 0; i < 9; i++ {
		if perm&(1<<uint(8-i)) != 0 {
			out[i] = rwx[i]
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}
