// Package dispatch maps Operations Service requests onto the file, search,
// and command engines, and builds the response or error envelope shared by
// every transport.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/opsmesh/internal/observability"
	"github.com/brightloop/opsmesh/internal/ops/commandengine"
	"github.com/brightloop/opsmesh/internal/ops/fileengine"
	"github.com/brightloop/opsmesh/internal/ops/searchengine"
	"github.com/brightloop/opsmesh/pkg/protocol"
)

// Dispatcher routes a decoded request envelope to the engine that
// implements its operation.
type Dispatcher struct {
	files    *fileengine.Engine
	search   *searchengine.Engine
	commands *commandengine.Engine
	metrics  *observability.Metrics
	logger   *observability.Logger

	commandTimeout time.Duration
}

// New builds a Dispatcher wired to fresh engine instances.
func New(metrics *observability.Metrics, logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		files:          fileengine.New(),
		search:         searchengine.New().WithLogger(logger),
		commands:       commandengine.New(),
		metrics:        metrics,
		logger:         logger,
		commandTimeout: commandengine.DefaultTimeout,
	}
}

// WithCommandTimeout overrides the default timeout applied when a request
// omits timeout_seconds, and returns the receiver.
func (d *Dispatcher) WithCommandTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.commandTimeout = timeout
	}
	return d
}

// Dispatch handles one non-streaming request and returns the response or
// error envelope to send back. It never returns a Go error: all failure
// paths are folded into an error Envelope, since that is what every
// transport needs to emit.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Envelope) protocol.Envelope {
	if req.Stream {
		if _, streams := streamingOperations[req.Operation]; streams {
			return protocol.NewStreamingPlaceholder(uuid.NewString(), req.ID)
		}
	}

	start := time.Now()
	result, err := d.invoke(ctx, req.Operation, req.Params)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if d.metrics != nil {
		d.metrics.RecordOperation(req.Operation, outcome, time.Since(start))
	}

	if err != nil {
		return errorEnvelope(req.ID, err)
	}
	return protocol.NewResponse(uuid.NewString(), req.ID, result)
}

var streamingOperations = map[string]struct{}{
	"list_directory":  {},
	"read_file":       {},
	"grep":            {},
	"execute_command": {},
}

// invoke runs one operation to completion and returns its result payload.
func (d *Dispatcher) invoke(ctx context.Context, operation string, params map[string]any) (any, error) {
	switch operation {
	case "list_directory":
		return d.listDirectory(params)
	case "read_file":
		return d.readFile(params)
	case "create_file":
		return d.writeFile(params, "create", d.files.CreateFile)
	case "edit_file":
		return d.writeFile(params, "edit", d.files.EditFile)
	case "append_file":
		return d.writeFile(params, "append", d.files.AppendFile)
	case "grep":
		return d.grep(params)
	case "execute_command":
		return d.executeCommand(ctx, params)
	default:
		return nil, protocol.NewOpError(protocol.ErrUnknownOperation, "unknown operation: "+operation)
	}
}

func (d *Dispatcher) listDirectory(params map[string]any) (any, error) {
	path, err := pathParam(params, "path", false, ".")
	if err != nil {
		return nil, err
	}
	descriptors, err := d.files.ListDirectory(path)
	if err != nil {
		return nil, translateFileError(err)
	}
	return map[string]any{
		"path":        path,
		"files":       descriptors,
		"total_count": len(descriptors),
	}, nil
}

func (d *Dispatcher) readFile(params map[string]any) (any, error) {
	path, err := pathParam(params, "path", true, "")
	if err != nil {
		return nil, err
	}
	content, size, err := d.files.ReadFile(path)
	if err != nil {
		return nil, translateFileError(err)
	}
	return map[string]any{
		"path":     path,
		"content":  content,
		"size":     size,
		"encoding": "utf-8",
	}, nil
}

type fileWriteFunc func(path, content string) (int, error)

func (d *Dispatcher) writeFile(params map[string]any, operation string, write fileWriteFunc) (any, error) {
	path, err := pathParam(params, "path", true, "")
	if err != nil {
		return nil, err
	}
	content, err := stringParam(params, "content", true, "")
	if err != nil {
		return nil, err
	}

	bytesWritten, err := write(path, content)
	if err != nil {
		return nil, translateFileError(err)
	}
	return map[string]any{
		"path":          path,
		"operation":     operation,
		"success":       true,
		"message":       fmt.Sprintf("%s succeeded: %s", operation, path),
		"bytes_written": bytesWritten,
	}, nil
}

func (d *Dispatcher) grep(params map[string]any) (any, error) {
	pattern, err := stringParam(params, "pattern", true, "")
	if err != nil {
		return nil, err
	}
	path, err := pathParam(params, "path", false, ".")
	if err != nil {
		return nil, err
	}
	recursive, err := boolParam(params, "recursive", false)
	if err != nil {
		return nil, err
	}
	caseSensitive, err := boolParam(params, "case_sensitive", true)
	if err != nil {
		return nil, err
	}

	result, err := d.search.Search(pattern, path, recursive, caseSensitive)
	if err != nil {
		return nil, translateSearchError(err)
	}
	return map[string]any{
		"pattern":        pattern,
		"path":           path,
		"recursive":      recursive,
		"matches":        result.Matches,
		"total_matches":  len(result.Matches),
		"files_searched": result.FilesSearched,
	}, nil
}

func (d *Dispatcher) executeCommand(ctx context.Context, params map[string]any) (any, error) {
	command, err := stringParam(params, "command", true, "")
	if err != nil {
		return nil, err
	}
	workingDir, err := workingDirParam(params)
	if err != nil {
		return nil, err
	}
	timeoutSeconds, err := intParam(params, "timeout_seconds", int(d.commandTimeout/time.Second))
	if err != nil {
		return nil, err
	}

	result, err := d.commands.Execute(ctx, command, workingDir, time.Duration(timeoutSeconds)*time.Second)
	if err != nil {
		return nil, translateCommandError(err)
	}
	return result, nil
}

func translateFileError(err error) error {
	var notFound *fileengine.NotFoundError
	var notDir *fileengine.DirectoryError
	var notFile *fileengine.FileError
	var exists *fileengine.ExistsError
	switch {
	case errors.As(err, &notFound):
		return protocol.NewOpError(protocol.ErrPathNotFound, err.Error())
	case errors.As(err, &notDir):
		return protocol.NewOpError(protocol.ErrNotADirectory, err.Error())
	case errors.As(err, &notFile):
		return protocol.NewOpError(protocol.ErrNotAFile, err.Error())
	case errors.As(err, &exists):
		return protocol.NewOpError(protocol.ErrFileExists, err.Error())
	default:
		return protocol.NewOpError(protocol.ErrIOError, err.Error())
	}
}

func translateSearchError(err error) error {
	var notFound *searchengine.NotFoundError
	var badPattern *searchengine.PatternError
	switch {
	case errors.As(err, &notFound):
		return protocol.NewOpError(protocol.ErrPathNotFound, err.Error())
	case errors.As(err, &badPattern):
		return protocol.NewOpError(protocol.ErrInvalidPattern, err.Error())
	default:
		return protocol.NewOpError(protocol.ErrIOError, err.Error())
	}
}

func translateCommandError(err error) error {
	var forbidden *commandengine.ForbiddenError
	var timedOut *commandengine.TimeoutError
	switch {
	case errors.As(err, &forbidden):
		return protocol.NewOpError(protocol.ErrForbiddenCommand, err.Error())
	case errors.As(err, &timedOut):
		return protocol.NewOpError(protocol.ErrCommandTimeout, err.Error())
	default:
		return protocol.NewOpError(protocol.ErrIOError, err.Error())
	}
}

func errorEnvelope(requestID string, err error) protocol.Envelope {
	var opErr *protocol.OpError
	if errors.As(err, &opErr) {
		return protocol.NewErrorEnvelope(uuid.NewString(), requestID, opErr.Code, opErr.Message, opErr.Details)
	}
	return protocol.NewErrorEnvelope(uuid.NewString(), requestID, protocol.ErrIOError, err.Error(), nil)
}
