package domain

import (
	"encoding/json"
	"fmt"
)

// Stream event type tags as emitted by the upstream push channel.
const (
	EventTypeShotStart    = "shot_start"
	EventTypeProgress     = "progress"
	EventTypeShotComplete = "shot_complete"
	EventTypeComplete     = "complete"
	EventTypeError        = "error"
)

// Error codes that mark a stale channel rather than a failed task: the server
// no longer knows the task, or already delivered its terminal state elsewhere.
const (
	ErrorCodeTaskNotFound = "task_not_found"
	ErrorCodeTaskClosed   = "task_closed"
)

// StreamEvent is the tagged union of events delivered by the push channel.
type StreamEvent interface {
	streamEvent()
}

// ShotStartEvent announces that generation of a shot has begun.
type ShotStartEvent struct {
	ShotNumber int
}

// ProgressEvent carries the percentage for one shot.
type ProgressEvent struct {
	ShotNumber int
	Progress   int
}

// ShotCompleteEvent announces that one shot has finished rendering.
type ShotCompleteEvent struct {
	ShotNumber int
}

// CompleteEvent is the terminal success event.
type CompleteEvent struct {
	Result GenerationResult
}

// ErrorEvent is the terminal failure event, or a stale-channel signal when
// Stale reports true.
type ErrorEvent struct {
	Code    string
	Message string
}

func (ShotStartEvent) streamEvent()    {}
func (ProgressEvent) streamEvent()     {}
func (ShotCompleteEvent) streamEvent() {}
func (CompleteEvent) streamEvent()     {}
func (ErrorEvent) streamEvent()        {}

// Stale reports whether the error indicates the channel is out of date rather
// than the task having failed. Stale errors trigger a final-state recheck.
func (e ErrorEvent) Stale() bool {
	return e.Code == ErrorCodeTaskNotFound || e.Code == ErrorCodeTaskClosed
}

type eventEnvelope struct {
	Type       string            `json:"type"`
	ShotNumber int               `json:"shot_number,omitempty"`
	Progress   int               `json:"progress,omitempty"`
	Result     *GenerationResult `json:"result,omitempty"`
	Code       string            `json:"code,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// ParseStreamEvent decodes one wire message into its typed event. Unknown
// tags are an error; the consumer treats them as a channel fault.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}
	switch env.Type {
	case EventTypeShotStart:
		return ShotStartEvent{ShotNumber: env.ShotNumber}, nil
	case EventTypeProgress:
		return ProgressEvent{ShotNumber: env.ShotNumber, Progress: env.Progress}, nil
	case EventTypeShotComplete:
		return ShotCompleteEvent{ShotNumber: env.ShotNumber}, nil
	case EventTypeComplete:
		if env.Result == nil {
			return nil, fmt.Errorf("complete event without result")
		}
		return CompleteEvent{Result: *env.Result}, nil
	case EventTypeError:
		return ErrorEvent{Code: env.Code, Message: env.Error}, nil
	default:
		return nil, fmt.Errorf("unknown stream event type %q", env.Type)
	}
}
