package types

import "time"

// EventType defines the type of event emitted by the orchestrator.
type EventType string

const (
	EventTypePlanningStarted     EventType = "planning-started"     // EventTypePlanningStarted indicates the planner is being called for a step.
	EventTypeDecisionMade        EventType = "decision-made"        // EventTypeDecisionMade indicates the planner output was parsed into a decision.
	EventTypeDelegationStarted   EventType = "delegation-started"   // EventTypeDelegationStarted indicates a task was handed to the doer.
	EventTypeDelegationCompleted EventType = "delegation-completed" // EventTypeDelegationCompleted indicates the doer returned.
	EventTypeFinished            EventType = "finished"             // EventTypeFinished indicates the loop reached FINISH.
	EventTypeError               EventType = "error"                // EventTypeError indicates the invocation failed.
	EventTypeTextStart           EventType = "text-start"           // EventTypeTextStart opens the final text frame.
	EventTypeTextDelta           EventType = "text-delta"           // EventTypeTextDelta carries the final text.
	EventTypeTextEnd             EventType = "text-end"             // EventTypeTextEnd closes the final text frame.
	EventTypeToolCall            EventType = "tool-call"            // EventTypeToolCall indicates the doer invoked a tool.
	EventTypeToolResult          EventType = "tool-result"          // EventTypeToolResult indicates a tool returned.
)

// Lifecycle reports whether t is an orchestrator lifecycle event as opposed
// to final-text framing.
func (t EventType) Lifecycle() bool {
	switch t {
	case EventTypeTextStart, EventTypeTextDelta, EventTypeTextEnd:
		return false
	default:
		return true
	}
}

// DecisionKind is the branch chosen by the planner.
type DecisionKind string

const (
	DecisionTask   DecisionKind = "TASK"
	DecisionFinish DecisionKind = "FINISH"
)

// OrchestratorEvent represents an event emitted during one orchestrator invocation.
type OrchestratorEvent struct {
	// Seq is assigned by the emitter and strictly increases within a stream.
	Seq int `json:"seq"`

	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Step is the 1-based planner step this event belongs to.
	Step int `json:"step,omitempty"`

	// MaxSteps is the planner step budget.
	MaxSteps int `json:"maxSteps,omitempty"`

	// Decision is set on decision-made events.
	Decision DecisionKind `json:"decision,omitempty"`

	// Task is the delegated task text.
	Task string `json:"task,omitempty"`

	// Content holds text for decision, result and text-delta events.
	Content string `json:"content,omitempty"`

	// ID identifies the text frame for text-* events.
	ID string `json:"id,omitempty"`

	// BestEffort is set when the doer ran out of steps.
	BestEffort bool `json:"bestEffort,omitempty"`

	// ToolName is set on tool events.
	ToolName string `json:"toolName,omitempty"`

	// Error holds the message for error events.
	Error string `json:"error,omitempty"`

	// ErrorKind classifies error events.
	ErrorKind ErrorKind `json:"errorKind,omitempty"`

	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func newEvent(t EventType) OrchestratorEvent {
	return OrchestratorEvent{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]interface{}),
	}
}

// NewPlanningStartedEvent creates a planning-started event.
func NewPlanningStartedEvent(step, maxSteps int) OrchestratorEvent {
	e := newEvent(EventTypePlanningStarted)
	e.Step = step
	e.MaxSteps = maxSteps
	return e
}

// NewDecisionMadeEvent creates a decision-made event.
func NewDecisionMadeEvent(step int, kind DecisionKind, text string) OrchestratorEvent {
	e := newEvent(EventTypeDecisionMade)
	e.Step = step
	e.Decision = kind
	e.Content = text
	return e
}

// NewDelegationStartedEvent creates a delegation-started event.
func NewDelegationStartedEvent(step int, task string) OrchestratorEvent {
	e := newEvent(EventTypeDelegationStarted)
	e.Step = step
	e.Task = task
	return e
}

// NewDelegationCompletedEvent creates a delegation-completed event.
func NewDelegationCompletedEvent(step int, task, result string, bestEffort bool) OrchestratorEvent {
	e := newEvent(EventTypeDelegationCompleted)
	e.Step = step
	e.Task = task
	e.Content = result
	e.BestEffort = bestEffort
	return e
}

// NewFinishedEvent creates a finished event.
func NewFinishedEvent(step int, answer string) OrchestratorEvent {
	e := newEvent(EventTypeFinished)
	e.Step = step
	e.Content = answer
	return e
}

// NewErrorEvent creates an error event.
func NewErrorEvent(err error) OrchestratorEvent {
	e := newEvent(EventTypeError)
	if err != nil {
		e.Error = err.Error()
		e.ErrorKind = KindOf(err)
	}
	return e
}

// NewToolCallEvent creates a tool-call event.
func NewToolCallEvent(toolName string, input map[string]interface{}) OrchestratorEvent {
	e := newEvent(EventTypeToolCall)
	e.ToolName = toolName
	if input != nil {
		e.Metadata["input"] = input
	}
	return e
}

// NewToolResultEvent creates a tool-result event.
func NewToolResultEvent(toolName string, success bool) OrchestratorEvent {
	e := newEvent(EventTypeToolResult)
	e.ToolName = toolName
	e.Metadata["success"] = success
	return e
}

// NewTextEvent creates one of the text framing events.
func NewTextEvent(t EventType, id, delta string) OrchestratorEvent {
	e := newEvent(t)
	e.ID = id
	e.Content = delta
	return e
}

// WithMetadata adds metadata to the event and returns it for chaining.
func (e OrchestratorEvent) WithMetadata(key string, value interface{}) OrchestratorEvent {
	md := make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}
