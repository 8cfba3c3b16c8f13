package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legacore/legacore/control-plane/internal/catalog"
	"github.com/legacore/legacore/control-plane/internal/executor"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

func TestDecodeInvocation_Valid(t *testing.T) {
	cases := map[string]string{
		"bare":       `{"action":"use_tool","tool":"X","parameters":{"a":1}}`,
		"prose":      `Sure thing. {"action":"use_tool","tool":"X","parameters":{"a":1}} Hope that helps.`,
		"fenced":     "```json\n{\n  \"action\": \"use_tool\",\n  \"tool\": \"X\",\n  \"parameters\": {\"a\": 1}\n}\n```",
		"extra keys": `{"action":"use_tool","tool":"X","parameters":{"a":1},"reason":"needed"}`,
		"nested":     `{"action":"use_tool","tool":"X","parameters":{"a":1,"b":{"c":[1,2]}}}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			inv, ok := executor.DecodeInvocation(text)
			require.True(t, ok)
			assert.Equal(t, "X", inv.Tool)
			assert.Equal(t, 1.0, inv.Parameters["a"])
		})
	}
}

func TestDecodeInvocation_EmptyParametersObject(t *testing.T) {
	inv, ok := executor.DecodeInvocation(`{"action":"use_tool","tool":"X","parameters":{}}`)
	require.True(t, ok)
	assert.Empty(t, inv.Parameters)
}

func TestDecodeInvocation_NotAnInvocation(t *testing.T) {
	cases := map[string]string{
		"empty":             ``,
		"plain text":        `Your credit score is fair.`,
		"unrelated json":    `{"foo":"bar"}`,
		"wrong action":      `{"action":"call_tool","tool":"X","parameters":{}}`,
		"action not string": `{"action":true,"tool":"X","parameters":{}}`,
		"missing tool":      `{"action":"use_tool","parameters":{}}`,
		"empty tool":        `{"action":"use_tool","tool":"","parameters":{}}`,
		"tool not string":   `{"action":"use_tool","tool":7,"parameters":{}}`,
		"missing params":    `{"action":"use_tool","tool":"X"}`,
		"null params":       `{"action":"use_tool","tool":"X","parameters":null}`,
		"array params":      `{"action":"use_tool","tool":"X","parameters":[1,2]}`,
		"string params":     `{"action":"use_tool","tool":"X","parameters":"a=1"}`,
		"truncated":         `{"action":"use_tool","tool":"X","parameters":{"a":1}`,
		"only open brace":   `{ nothing closes`,
		"reversed braces":   `} weird {`,
		"two objects":       `{"action":"use_tool","tool":"X","parameters":{}} and {"action":"use_tool","tool":"Y","parameters":{}}`,
		"single quotes":     `{'action':'use_tool','tool':'X','parameters':{}}`,
		"case mismatch":     `{"action":"USE_TOOL","tool":"X","parameters":{}}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			inv, ok := executor.DecodeInvocation(text)
			assert.False(t, ok)
			assert.Nil(t, inv)
		})
	}
}

func TestKeywordGate(t *testing.T) {
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	credit, _ := cat.Get("credit-repair-expert")

	gate := executor.KeywordGate{}
	assert.True(t, gate.ShouldInvokeTools(credit, "analyze credit report score 650"))
	assert.True(t, gate.ShouldInvokeTools(credit, "Please ANALYZE my file"))
	assert.False(t, gate.ShouldInvokeTools(credit, "hi"))

	assert.False(t, gate.ShouldInvokeTools(&models.AgentConfig{ID: "bare"}, "analyze everything"))
	assert.False(t, gate.ShouldInvokeTools(nil, "analyze"))
}

func TestToolKeywords(t *testing.T) {
	kws := executor.ToolKeywords([]models.AgentTool{{
		Name:        "Value_Business",
		Description: "Calculate  business valuation using multiple methods and more words",
	}})
	assert.Equal(t, []string{
		"value_business", "value", "business",
		"calculate", "business", "valuation", "using",
	}, kws)
}
