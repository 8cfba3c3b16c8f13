// Package tools dispatches agent tool invocations to per-category handlers.
//
// Dispatch is a two-level lookup: category → tool name → handler. A known
// category without a handler for the tool answers with the category's
// default payload; an unknown category answers with the generic echo.
// Handlers are pure computations over their parameters.
package tools

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/legacore/legacore/control-plane/internal/metrics"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// Handler computes a tool result from validated parameters.
type Handler func(params map[string]any) (map[string]any, error)

// Toolset is the handler table of one agent category.
type Toolset struct {
	// Label names the category in default results, e.g. "Credit repair".
	Label    string
	Handlers map[string]Handler
	// Default answers tools without a dedicated handler. When nil, the
	// result is {"result": "<Label> tool executed", "parameters": ...}.
	Default Handler
}

func (ts *Toolset) handler(tool string) Handler {
	if h, ok := ts.Handlers[tool]; ok {
		return h
	}
	if ts.Default != nil {
		return ts.Default
	}
	label := ts.Label
	return func(params map[string]any) (map[string]any, error) {
		return map[string]any{
			"result":     label + " tool executed",
			"parameters": params,
		}, nil
	}
}

// ParameterError reports a missing required tool parameter.
type ParameterError struct {
	Tool      string
	Parameter string
}

func (e *ParameterError) Error() string {
	return "Missing required parameter: " + e.Parameter
}

// ValidateParameters checks that every required parameter is present.
func ValidateParameters(tool models.AgentTool, params map[string]any) error {
	for _, name := range tool.Parameters.Required {
		if _, ok := params[name]; !ok {
			return &ParameterError{Tool: tool.Name, Parameter: name}
		}
	}
	return nil
}

// Registry maps categories to toolsets.
type Registry struct {
	mu         sync.RWMutex
	categories map[string]*Toolset
	now        func() time.Time
}

// NewRegistry returns a registry with the built-in LEGACORE toolsets.
func NewRegistry() *Registry {
	r := &Registry{
		categories: make(map[string]*Toolset),
		now:        time.Now,
	}
	r.Register("surplus-funds", surplusFundsTools())
	r.Register("credit-repair", creditRepairTools())
	r.Register("business-acquisition", businessAcquisitionTools())
	r.Register("debt-collection", &Toolset{Label: "Debt collection"})
	r.Register("government-contracts", &Toolset{Label: "Government contracts"})
	r.Register("trust-management", &Toolset{Label: "Trust management"})
	r.Register("real-estate-investment", &Toolset{Label: "Real estate"})
	r.Register("tax-optimization", &Toolset{Label: "Tax optimization"})
	return r
}

// Register installs or replaces the toolset for category.
func (r *Registry) Register(category string, ts *Toolset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[category] = ts
}

// Categories lists registered categories in sorted order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.categories))
	for c := range r.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Execute validates params against tool and dispatches it. The handler is
// never invoked with incomplete input.
func (r *Registry) Execute(category string, tool models.AgentTool, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	if err := ValidateParameters(tool, params); err != nil {
		metrics.RecordToolCall(category, tool.Name, "invalid")
		return nil, err
	}

	r.mu.RLock()
	ts, ok := r.categories[category]
	r.mu.RUnlock()

	if !ok {
		metrics.RecordToolCall(category, tool.Name, "generic")
		return r.generic(tool.Name, params), nil
	}

	out, err := ts.handler(tool.Name)(params)
	if err != nil {
		metrics.RecordToolCall(category, tool.Name, "error")
		return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
	}
	metrics.RecordToolCall(category, tool.Name, "success")
	return out, nil
}

func (r *Registry) generic(tool string, params map[string]any) map[string]any {
	return map[string]any{
		"tool_name":  tool,
		"parameters": params,
		"result":     "Generic tool execution completed",
		"timestamp":  r.now().UTC().Format(time.RFC3339),
	}
}
