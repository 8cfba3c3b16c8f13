package models

import (
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Semantic Versioning Helpers ──────────────────────────────

// DefaultAgentVersion is the version assigned to catalog agents that omit one.
const DefaultAgentVersion = "1.0.0"

// IsSemver returns true if the string looks like "X.Y.Z".
func IsSemver(v string) bool {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

// ── Providers ────────────────────────────────────────────────

// Known upstream providers.
const (
	ProviderOpenAI     = "openai"
	ProviderGroq       = "groq"
	ProviderXAI        = "xai"
	ProviderOpenRouter = "openrouter"

	// ProviderMock is the sentinel recommended when nothing is configured.
	ProviderMock = "mock"
	// ProviderFallback marks a synthetic response produced after every attempt failed.
	ProviderFallback = "fallback"
)

// ProviderNames is the canonical provider precedence.
var ProviderNames = []string{ProviderOpenAI, ProviderGroq, ProviderXAI, ProviderOpenRouter}

// KeySource identifies which credential slot produced a provider's key.
type KeySource string

const (
	KeySourceVercel   KeySource = "vercel"
	KeySourcePrimary  KeySource = "primary"
	KeySourceFallback KeySource = "fallback"
	KeySourceNone     KeySource = "none"
)

// ProviderStatus is the operational status of a provider.
type ProviderStatus string

const (
	StatusActive   ProviderStatus = "active"
	StatusFallback ProviderStatus = "fallback"
	StatusDisabled ProviderStatus = "disabled"
	StatusError    ProviderStatus = "error"
)

// ProviderConfig is the resolved credential state of one provider.
type ProviderConfig struct {
	Name        string         `json:"name"`
	Enabled     bool           `json:"enabled"`
	HasValidKey bool           `json:"hasValidKey"`
	KeySource   KeySource      `json:"keySource"`
	Model       string         `json:"model,omitempty"`
	Status      ProviderStatus `json:"status"`
}

// ValidationResult is the output of one credential validation pass.
type ValidationResult struct {
	Providers           map[string]ProviderConfig `json:"providers"`
	HasAnyProvider      bool                      `json:"hasAnyProvider"`
	RecommendedProvider string                    `json:"recommendedProvider"`
	Errors              []string                  `json:"errors"`
	Warnings            []string                  `json:"warnings"`
}

// Provider returns the config for name, or a zero disabled config.
func (v ValidationResult) Provider(name string) ProviderConfig {
	if pc, ok := v.Providers[name]; ok {
		return pc
	}
	return ProviderConfig{Name: strings.ToUpper(name), KeySource: KeySourceNone, Status: StatusDisabled}
}

// ── Chat & Responses ─────────────────────────────────────────

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a structured conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one generation call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AIResponse is the result of a successful (or synthetic) generation call.
type AIResponse struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Usage    *Usage `json:"usage,omitempty"`
}

// IsFallback reports whether the response was produced locally.
func (r AIResponse) IsFallback() bool {
	return r.Provider == ProviderFallback || r.Provider == ProviderMock
}

// ── Agents ───────────────────────────────────────────────────

// AgentConfig is a persona definition from the agent catalog.
type AgentConfig struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description" yaml:"description"`
	Category     string         `json:"category" yaml:"category"`
	Provider     string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model        string         `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int            `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Version      string         `json:"version" yaml:"version"`
	Active       bool           `json:"active" yaml:"active"`
	SystemPrompt string         `json:"systemPrompt" yaml:"systemPrompt"`
	Functions    []string       `json:"functions,omitempty" yaml:"functions,omitempty"`
	Tools        []AgentTool    `json:"tools" yaml:"tools"`
	Examples     []AgentExample `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Tool returns the named tool declared by the agent.
func (a *AgentConfig) Tool(name string) (AgentTool, bool) {
	for _, t := range a.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return AgentTool{}, false
}

// AgentTool is a callable action an agent may request mid-conversation.
type AgentTool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  ToolParameters `json:"parameters" yaml:"parameters"`
}

// ToolParameters is a JSON-schema-like description of a tool's input.
type ToolParameters struct {
	Type       string                  `json:"type" yaml:"type"`
	Properties map[string]ToolProperty `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required   []string                `json:"required,omitempty" yaml:"required,omitempty"`
}

// ToolProperty describes one parameter.
type ToolProperty struct {
	Type        string        `json:"type" yaml:"type"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Items       *ToolProperty `json:"items,omitempty" yaml:"items,omitempty"`
}

// AgentExample is a sample exchange shown to users. Catalog files may give
// a bare string, which is taken as the input.
type AgentExample struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// UnmarshalYAML accepts either a scalar or an {input, output} mapping.
func (e *AgentExample) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Input = node.Value
		return nil
	}
	type plain AgentExample
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = AgentExample(p)
	return nil
}

// ── Tasks ────────────────────────────────────────────────────

// TaskStatus is the lifecycle state of an AgentTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether moving from s to next is a forward step.
//
//	pending → running → completed | failed
//
// A pending task may also fail directly when it cannot be started.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskRunning || next == TaskFailed
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// AgentTask is one execution request and its result.
type AgentTask struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	UserID    string         `json:"user_id"`
	Input     string         `json:"input"`
	Output    string         `json:"output,omitempty"`
	Status    TaskStatus     `json:"status"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ── Threads ──────────────────────────────────────────────────

// AgentThread is a persisted multi-turn conversation with one agent.
type AgentThread struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentMessage is one append-only entry of a thread.
type AgentMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Activity ─────────────────────────────────────────────────

// ActivityLog records a user-visible event against a resource.
type ActivityLog struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
