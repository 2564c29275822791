package dispatch

import "github.com/brightloop/opsmesh/pkg/protocol"

// Catalog returns the fixed operation descriptor list served by the
// discovery endpoint. It mirrors the operations this package knows how to
// dispatch; the two must be kept in sync by hand, since the catalog is a
// documentation artifact rather than a generated one.
func Catalog() []protocol.OperationDescriptor {
	return []protocol.OperationDescriptor{
		{
			Name:        "list_directory",
			Description: "List the immediate children of a directory.",
			Streaming:   true,
			Parameters: parameterDescriptorList{
				{Name: "path", Type: "string", Required: false, Default: "."},
			}.toProtocol(),
		},
		{
			Name:        "read_file",
			Description: "Read a file's full UTF-8 content.",
			Streaming:   true,
			Parameters: parameterDescriptorList{
				{Name: "path", Type: "string", Required: true},
			}.toProtocol(),
		},
		{
			Name:        "create_file",
			Description: "Create a new file, materializing missing parent directories.",
			Streaming:   false,
			Parameters: parameterDescriptorList{
				{Name: "path", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
			}.toProtocol(),
		},
		{
			Name:        "edit_file",
			Description: "Overwrite an existing file's content.",
			Streaming:   false,
			Parameters: parameterDescriptorList{
				{Name: "path", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
			}.toProtocol(),
		},
		{
			Name:        "append_file",
			Description: "Append content to an existing file.",
			Streaming:   false,
			Parameters: parameterDescriptorList{
				{Name: "path", Type: "string", Required: true},
				{Name: "content", Type: "string", Required: true},
			}.toProtocol(),
		},
		{
			Name:        "grep",
			Description: "Search a file or directory tree for a regular expression.",
			Streaming:   true,
			Parameters: parameterDescriptorList{
				{Name: "pattern", Type: "string", Required: true},
				{Name: "path", Type: "string", Required: false, Default: "."},
				{Name: "recursive", Type: "boolean", Required: false, Default: false},
				{Name: "case_sensitive", Type: "boolean", Required: false, Default: true},
			}.toProtocol(),
		},
		{
			Name:        "execute_command",
			Description: "Run a shell command and capture its output.",
			Streaming:   true,
			Parameters: parameterDescriptorList{
				{Name: "command", Type: "string", Required: true},
				{Name: "working_directory", Type: "string", Required: false},
				{Name: "timeout_seconds", Type: "number", Required: false, Default: 300},
				{Name: "include_stderr", Type: "boolean", Required: false, Default: true},
			}.toProtocol(),
		},
	}
}

// ParameterDescriptor is a lightweight literal form that converts into the
// protocol package's wire type; it exists purely so Catalog can be written
// as a flat struct literal.
type ParameterDescriptor struct {
	Name     string
	Type     string
	Required bool
	Default  any
}

type parameterDescriptorList []ParameterDescriptor

func (l parameterDescriptorList) toProtocol() []protocol.ParameterDescriptor {
	out := make([]protocol.ParameterDescriptor, 0, len(l))
	for _, p := range l {
		out = append(out, protocol.ParameterDescriptor{
			Name:     p.Name,
			Type:     p.Type,
			Required: p.Required,
			Default:  p.Default,
		})
	}
	return out
}
