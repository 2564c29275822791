// Package searchengine implements the Operations Service's grep primitive:
// regex search against a single file or a directory tree, with bounded
// recursion and a binary-content heuristic.
package searchengine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/brightloop/opsmesh/internal/observability"
)

// MaxDepth bounds recursive directory traversal. Subtrees beyond this depth
// are skipped rather than erroring.
const MaxDepth = 10

// binarySampleSize is how many leading bytes are inspected to decide whether
// a file is binary.
const binarySampleSize = 512

// binaryZeroThreshold is the fraction of zero bytes in the sample at or
// above which a file is treated as binary and skipped.
const binaryZeroThreshold = 0.01

// Match describes one regex match within a searched file.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Text    string `json:"text"`
}

// NotFoundError maps to PATH_NOT_FOUND.
type NotFoundError struct{ Path string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("path not found: %s", e.Path) }

// PatternError maps to INVALID_PATTERN.
type PatternError struct {
	Pattern string
	Cause   error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Cause)
}

func (e *PatternError) Unwrap() error { return e.Cause }

// Engine implements the Search Engine. It is stateless between requests.
type Engine struct {
	logger *observability.Logger
}

// New returns a ready-to-use Engine.
func New() *Engine { return &Engine{} }

// WithLogger attaches a logger used to report skipped subtrees, and returns
// the receiver.
func (e *Engine) WithLogger(logger *observability.Logger) *Engine {
	e.logger = logger
	return e
}

// Result is the aggregated, non-streaming search outcome. FilesSearched
// counts every file actually opened, including files sampled and then
// skipped as binary.
type Result struct {
	Matches       []Match
	FilesSearched int
}

// Search walks path (a single file, or a directory tree when recursive is
// set) looking for pattern, and returns every match plus the number of
// files actually opened, including those skipped as binary.
func (e *Engine) Search(pattern, path string, recursive, caseSensitive bool) (*Result, error) {
	re, err := compile(pattern, caseSensitive)
	if err != nil {
		return nil, err
	}

	files, err := e.candidateFiles(path, recursive)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, file := range files {
		isBinary, opened, err := isBinaryFile(file)
		if err != nil || !opened {
			continue
		}
		result.FilesSearched++
		if isBinary {
			continue
		}
		matches, err := searchFile(file, re)
		if err != nil {
			continue
		}
		result.Matches = append(result.Matches, matches...)
	}
	return result, nil
}

// SearchStream behaves like Search but delivers matches incrementally over
// the returned channel, which is closed once every candidate file has been
// scanned. filesSearched is updated as files are opened and is only safe to
// read after the channel closes.
func (e *Engine) SearchStream(pattern, path string, recursive, caseSensitive bool) (<-chan Match, func() int, error) {
	re, err := compile(pattern, caseSensitive)
	if err != nil {
		return nil, nil, err
	}

	files, err := e.candidateFiles(path, recursive)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Match)
	filesSearched := 0
	go func() {
		defer close(out)
		for _, file := range files {
			isBinary, opened, err := isBinaryFile(file)
			if err != nil || !opened {
				continue
			}
			filesSearched++
			if isBinary {
				continue
			}
			matches, err := searchFile(file, re)
			if err != nil {
				continue
			}
			for _, m := range matches {
				out <- m
			}
		}
	}()
	return out, func() int { return filesSearched }, nil
}

func compile(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Cause: err}
	}
	return re, nil
}

// candidateFiles resolves path to the list of regular files that should be
// considered, honoring the recursive flag and MaxDepth.
func (e *Engine) candidateFiles(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, err
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	if !recursive {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	var files []string
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if depth > MaxDepth {
			if e.logger != nil {
				e.logger.Warn(context.Background(), "skipping subtree beyond max search depth",
					"path", dir, "max_depth", MaxDepth)
			}
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				walk(full, depth+1)
				continue
			}
			files = append(files, full)
		}
	}
	walk(path, 0)
	sort.Strings(files)
	return files, nil
}

// isBinaryFile samples the first binarySampleSize bytes of path and reports
// whether it should be treated as binary. opened is false if the file could
// not be opened at all (permission errors, symlink races); such files are
// silently skipped by the caller rather than failing the whole search.
func isBinaryFile(path string) (isBinary bool, opened bool, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		return false, false, nil
	}
	defer f.Close()

	buf := make([]byte, binarySampleSize)
	n, readErr := f.Read(buf)
	if readErr != nil && n == 0 {
		// Empty files are text by definition.
		return false, true, nil
	}
	if n == 0 {
		return false, true, nil
	}

	zero := 0
	for _, b := range buf[:n] {
		if b == 0 {
			zero++
		}
	}
	return float64(zero)/float64(n) >= binaryZeroThreshold, true, nil
}

// searchFile scans one file line by line, returning every regex match in
// file-then-line-then-column order.
func searchFile(path string, re *regexp.Regexp) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		for _, loc := range re.FindAllStringIndex(line, -1) {
			matches = append(matches, Match{
				Path:    path,
				Line:    lineNum,
				Content: line,
				Start:   loc[0],
				End:     loc[1],
				Text:    line[loc[0]:loc[1]],
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return matches, err
	}
	return matches, nil
}
