package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// argString and argStringSlice follow calculator.go's manual
// GetArguments()-then-type-assert style rather than reaching for
// request-level convenience methods, so every extraction failure produces
// the same argument-name-carrying error.

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func argStringOpt(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argObject(args map[string]any, key string) map[string]any {
	v, _ := args[key].(map[string]any)
	return v
}

func toolError(format string, a ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(format, a...))
}
