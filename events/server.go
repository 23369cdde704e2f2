package events

import "fmt"

// Inbound (server → client) events.

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of a remote error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

// DeltaEvent is the shared shape of all streaming delta events. Both
// protocol eras use the same field layout and differ only in type name.
type DeltaEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id,omitempty"`
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex int    `json:"output_index,omitempty"`
	Delta       string `json:"delta"`
}

type InputAudioTranscriptionCompletedEvent struct {
	BaseEvent
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response ResponseDonePayload `json:"response"`
}

type ResponseDonePayload struct {
	ID     string               `json:"id,omitempty"`
	Status string               `json:"status,omitempty"`
	Output []ResponseOutputItem `json:"output,omitempty"`
}

type ResponseOutputItem struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
}
