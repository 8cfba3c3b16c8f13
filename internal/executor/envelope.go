package executor

import (
	"encoding/json"
	"strings"
)

// ActionUseTool is the envelope action that requests a tool call.
const ActionUseTool = "use_tool"

// Invocation is a decoded tool request:
//
//	{"action": "use_tool", "tool": "<name>", "parameters": {...}}
type Invocation struct {
	Tool       string
	Parameters map[string]any
}

// DecodeInvocation extracts a tool invocation from model output. It takes
// the span from the first '{' to the last '}' and accepts it only if it is
// a JSON object with action "use_tool", a non-empty string tool and an
// object parameters. Anything else means no tool was requested.
func DecodeInvocation(text string) (*Invocation, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}

	var env struct {
		Action     any `json:"action"`
		Tool       any `json:"tool"`
		Parameters any `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &env); err != nil {
		return nil, false
	}

	if action, _ := env.Action.(string); action != ActionUseTool {
		return nil, false
	}
	tool, _ := env.Tool.(string)
	if tool == "" {
		return nil, false
	}
	params, ok := env.Parameters.(map[string]any)
	if !ok {
		return nil, false
	}
	return &Invocation{Tool: tool, Parameters: params}, true
}
