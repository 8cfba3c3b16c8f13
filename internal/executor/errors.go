package executor

import (
	"fmt"

	"github.com/legacore/legacore/control-plane/internal/tools"
)

// TaskNotFoundError is returned when a task id does not resolve.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return "Task not found: " + e.TaskID
}

// AgentConfigNotFoundError is returned when a task or thread names an agent
// that is not in the catalog.
type AgentConfigNotFoundError struct {
	AgentID string
}

func (e *AgentConfigNotFoundError) Error() string {
	return "Agent configuration not found: " + e.AgentID
}

// ThreadNotFoundError is returned when a thread id does not resolve.
type ThreadNotFoundError struct {
	ThreadID string
}

func (e *ThreadNotFoundError) Error() string {
	return "Thread not found: " + e.ThreadID
}

// ToolNotFoundError is returned when a model requests a tool the agent
// does not declare.
type ToolNotFoundError struct {
	AgentID string
	Tool    string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("Tool %s not found for agent %s", e.Tool, e.AgentID)
}

// ToolParameterError is returned when a tool invocation omits a required
// parameter.
type ToolParameterError = tools.ParameterError
