package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brightloop/opsmesh/pkg/protocol"
)

// DispatchStream handles one streaming request, returning a channel of
// stream-chunk (or a single error) envelopes. The channel is always closed
// by the time the last value is read, and the final value sent is either an
// error envelope or a chunk with IsFinal=true.
func (d *Dispatcher) DispatchStream(ctx context.Context, req protocol.Envelope) <-chan protocol.Envelope {
	out := make(chan protocol.Envelope)

	go func() {
		defer close(out)

		start := time.Now()
		err := d.runStream(ctx, req, out)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		if d.metrics != nil {
			d.metrics.RecordOperation(req.Operation, outcome, time.Since(start))
		}
		if err != nil {
			out <- errorEnvelope(req.ID, err)
		}
	}()

	return out
}

// runStream produces every data chunk for req.Operation on out, in order,
// followed by a terminal sentinel chunk. It returns the first error
// encountered, if any; callers translate it into an error envelope.
func (d *Dispatcher) runStream(ctx context.Context, req protocol.Envelope, out chan<- protocol.Envelope) error {
	switch req.Operation {
	case "list_directory":
		return d.streamListDirectory(ctx, req, out)
	case "read_file":
		return d.streamReadFile(ctx, req, out)
	case "grep":
		return d.streamGrep(ctx, req, out)
	case "execute_command":
		return d.streamExecuteCommand(ctx, req, out)
	default:
		return protocol.NewOpError(protocol.ErrUnknownOperation, "unknown operation: "+req.Operation)
	}
}

// emit sends one non-terminal data chunk, honoring cancellation so a slow
// consumer pauses emission rather than having chunks dropped.
func emit(ctx context.Context, out chan<- protocol.Envelope, id, requestID string, sequence int, data any) error {
	select {
	case out <- protocol.NewStreamChunk(id, requestID, sequence, data, false):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func emitFinal(ctx context.Context, out chan<- protocol.Envelope, id, requestID string, sequence int) error {
	select {
	case out <- protocol.NewStreamChunk(id, requestID, sequence, nil, true):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) streamListDirectory(ctx context.Context, req protocol.Envelope, out chan<- protocol.Envelope) error {
	path, err := pathParam(req.Params, "path", false, ".")
	if err != nil {
		return err
	}
	descriptors, err := d.files.ListDirectory(path)
	if err != nil {
		return translateFileError(err)
	}

	seq := 1
	for _, desc := range descriptors {
		if err := emit(ctx, out, uuid.NewString(), req.ID, seq, desc); err != nil {
			return err
		}
		seq++
	}
	return emitFinal(ctx, out, uuid.NewString(), req.ID, seq)
}

func (d *Dispatcher) streamReadFile(ctx context.Context, req protocol.Envelope, out chan<- protocol.Envelope) error {
	path, err := pathParam(req.Params, "path", true, "")
	if err != nil {
		return err
	}
	windows, err := d.files.ReadFileWindows(path)
	if err != nil {
		return translateFileError(err)
	}

	seq := 1
	for _, window := range windows {
		if err := emit(ctx, out, uuid.NewString(), req.ID, seq, window); err != nil {
			return err
		}
		seq++
	}
	return emitFinal(ctx, out, uuid.NewString(), req.ID, seq)
}

func (d *Dispatcher) streamGrep(ctx context.Context, req protocol.Envelope, out chan<- protocol.Envelope) error {
	pattern, err := stringParam(req.Params, "pattern", true, "")
	if err != nil {
		return err
	}
	path, err := pathParam(req.Params, "path", false, ".")
	if err != nil {
		return err
	}
	recursive, err := boolParam(req.Params, "recursive", false)
	if err != nil {
		return err
	}
	caseSensitive, err := boolParam(req.Params, "case_sensitive", true)
	if err != nil {
		return err
	}

	matches, _, err := d.search.SearchStream(pattern, path, recursive, caseSensitive)
	if err != nil {
		return translateSearchError(err)
	}

	seq := 1
	for match := range matches {
		if err := emit(ctx, out, uuid.NewString(), req.ID, seq, match); err != nil {
			return err
		}
		seq++
	}
	return emitFinal(ctx, out, uuid.NewString(), req.ID, seq)
}

func (d *Dispatcher) streamExecuteCommand(ctx context.Context, req protocol.Envelope, out chan<- protocol.Envelope) error {
	command, err := stringParam(req.Params, "command", true, "")
	if err != nil {
		return err
	}
	workingDir, err := workingDirParam(req.Params)
	if err != nil {
		return err
	}
	timeoutSeconds, err := intParam(req.Params, "timeout_seconds", int(d.commandTimeout/time.Second))
	if err != nil {
		return err
	}
	includeStderr, err := boolParam(req.Params, "include_stderr", true)
	if err != nil {
		return err
	}

	lines, err := d.commands.ExecuteStream(ctx, command, workingDir, time.Duration(timeoutSeconds)*time.Second, includeStderr)
	if err != nil {
		return translateCommandError(err)
	}

	seq := 1
	for line := range lines {
		if line.Err != nil {
			return translateCommandError(line.Err)
		}
		if err := emit(ctx, out, uuid.NewString(), req.ID, seq, line.Text); err != nil {
			return err
		}
		seq++
	}
	return emitFinal(ctx, out, uuid.NewString(), req.ID, seq)
}
