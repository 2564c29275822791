// Package toolcatalog defines the fixed tool schema the orchestrator
// advertises to the model, independent of whatever the downstream
// Operations Service actually implements.
package toolcatalog

import openai "github.com/sashabaranov/go-openai"

// Tools returns the constant catalog of seven tool definitions in
// OpenAI-function-calling shape, which the Ollama-shaped model endpoint
// also understands.
func Tools() []openai.Tool {
	return []openai.Tool{
		functionTool("list_directory", "List the immediate contents of a directory.", objectSchema(
			map[string]property{"path": {Type: "string", Description: "Directory path to list."}},
			nil,
		)),
		functionTool("read_file", "Read the full contents of a file.", objectSchema(
			map[string]property{"path": {Type: "string", Description: "File path to read."}},
			[]string{"path"},
		)),
		functionTool("create_file", "Create a new file with the given content.", objectSchema(
			map[string]property{
				"path":    {Type: "string", Description: "File path to create."},
				"content": {Type: "string", Description: "Content to write."},
			},
			[]string{"path", "content"},
		)),
		functionTool("edit_file", "Overwrite an existing file's content.", objectSchema(
			map[string]property{
				"path":    {Type: "string", Description: "File path to overwrite."},
				"content": {Type: "string", Description: "New content."},
			},
			[]string{"path", "content"},
		)),
		functionTool("append_file", "Append content to an existing file.", objectSchema(
			map[string]property{
				"path":    {Type: "string", Description: "File path to append to."},
				"content": {Type: "string", Description: "Content to append."},
			},
			[]string{"path", "content"},
		)),
		functionTool("execute_command", "Run a shell command and capture its output.", objectSchema(
			map[string]property{
				"command":           {Type: "string", Description: "The command to run."},
				"working_directory": {Type: "string", Description: "Optional working directory."},
			},
			[]string{"command"},
		)),
		functionTool("grep", "Search for a regular expression in a file or directory tree.", objectSchema(
			map[string]property{
				"pattern":   {Type: "string", Description: "Regular expression to search for."},
				"path":      {Type: "string", Description: "File or directory to search."},
				"recursive": {Type: "boolean", Description: "Search subdirectories when path is a directory."},
			},
			[]string{"pattern"},
		)),
	}
}

type property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func objectSchema(properties map[string]property, required []string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func functionTool(name, description string, parameters map[string]any) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
