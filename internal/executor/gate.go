package executor

import (
	"strings"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

// ToolGate decides whether an input warrants offering the agent's tools to
// the model.
type ToolGate interface {
	ShouldInvokeTools(agent *models.AgentConfig, input string) bool
}

// descriptionKeywords is how many leading words of a tool description count
// as keywords.
const descriptionKeywords = 5

// KeywordGate matches the input against keywords derived from each tool:
// the tool name, its underscore-separated parts and the first words of its
// description. Matching is a case-insensitive substring test.
type KeywordGate struct{}

func (KeywordGate) ShouldInvokeTools(agent *models.AgentConfig, input string) bool {
	if agent == nil || len(agent.Tools) == 0 {
		return false
	}
	in := strings.ToLower(input)
	for _, kw := range ToolKeywords(agent.Tools) {
		if strings.Contains(in, kw) {
			return true
		}
	}
	return false
}

// ToolKeywords returns the gate keywords for tools. Empty tokens are
// dropped.
func ToolKeywords(tools []models.AgentTool) []string {
	var out []string
	add := func(s string) {
		if s != "" {
			out = append(out, s)
		}
	}
	for _, t := range tools {
		name := strings.ToLower(t.Name)
		add(name)
		for _, part := range strings.Split(name, "_") {
			add(part)
		}
		words := strings.Split(strings.ToLower(t.Description), " ")
		if len(words) > descriptionKeywords {
			words = words[:descriptionKeywords]
		}
		for _, w := range words {
			add(w)
		}
	}
	return out
}
