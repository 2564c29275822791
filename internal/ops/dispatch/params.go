package dispatch

import (
	"fmt"
	"path/filepath"

	opsexec "github.com/brightloop/opsmesh/internal/exec"
	"github.com/brightloop/opsmesh/pkg/protocol"
)

// pathParam reads a path parameter and canonicalizes it, removing "." and
// ".." segments before any filesystem access. Symbolic links are left in
// place; the listing operation resolves them separately.
func pathParam(params map[string]any, name string, required bool, def string) (string, error) {
	raw, err := stringParam(params, name, required, def)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return raw, nil
	}
	return filepath.Clean(raw), nil
}

// workingDirParam reads the optional working_directory parameter. The
// path-cleaned value becomes a child process's working directory, so null
// bytes, line breaks, and shell metacharacters are rejected outright.
func workingDirParam(params map[string]any) (string, error) {
	dir, err := pathParam(params, "working_directory", false, "")
	if err != nil || dir == "" {
		return dir, err
	}
	if err := opsexec.CheckWorkingDir(dir); err != nil {
		return "", protocol.NewOpError(protocol.ErrInvalidParameter, "working_directory: "+err.Error())
	}
	return dir, nil
}

// stringParam reads a string parameter, applying def when absent and
// required is false, and returning MISSING_PARAMETER / INVALID_PARAMETER
// otherwise.
func stringParam(params map[string]any, name string, required bool, def string) (string, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		if required {
			return "", protocol.NewOpError(protocol.ErrMissingParameter, "missing required parameter: "+name)
		}
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", protocol.NewOpError(protocol.ErrInvalidParameter, fmt.Sprintf("parameter %s must be a string", name))
	}
	return s, nil
}

// boolParam reads a boolean parameter, defaulting when absent.
func boolParam(params map[string]any, name string, def bool) (bool, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, protocol.NewOpError(protocol.ErrInvalidParameter, fmt.Sprintf("parameter %s must be a boolean", name))
	}
	return b, nil
}

// intParam reads a numeric parameter. JSON numbers decode as float64, so
// both float64 and int are accepted.
func intParam(params map[string]any, name string, def int) (int, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, protocol.NewOpError(protocol.ErrInvalidParameter, fmt.Sprintf("parameter %s must be a number", name))
	}
}
