package generation

import (
	"encoding/json"

	"github.com/benvon/todo-digest/internal/models"
)

// EventType discriminates progress events
type EventType string

const (
	EventStatus EventType = "status"
	EventTodo   EventType = "todo"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Step names a pipeline stage reported by status events
type Step string

const (
	StepSlack      Step = "slack"
	StepGmail      Step = "gmail"
	StepNotion     Step = "notion"
	StepCollecting Step = "collecting"
	StepAI         Step = "ai"
	StepSaving     Step = "saving"
	StepComplete   Step = "complete"
)

// Event is one progress record of a generation run. Exactly one of done or error ends a run.
type Event struct {
	Type    EventType
	Step    Step
	Message string
	Todo    *models.Todo
	Todos   []*models.Todo
	// Err is the cause of an error event. It is never serialized.
	Err error
}

// MarshalJSON emits only the fields that belong to the event's variant
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStatus:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Step    Step      `json:"step"`
			Message string    `json:"message"`
		}{e.Type, e.Step, e.Message})
	case EventTodo:
		return json.Marshal(struct {
			Type EventType    `json:"type"`
			Todo *models.Todo `json:"todo"`
		}{e.Type, e.Todo})
	case EventDone:
		todos := e.Todos
		if todos == nil {
			todos = []*models.Todo{}
		}
		return json.Marshal(struct {
			Type    EventType      `json:"type"`
			Todos   []*models.Todo `json:"todos"`
			Message string         `json:"message,omitempty"`
		}{e.Type, todos, e.Message})
	default:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	}
}

// Terminal reports whether no events follow this one
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func statusEvent(step Step, message string) Event {
	return Event{Type: EventStatus, Step: step, Message: message}
}
