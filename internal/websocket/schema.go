package websocket

import "github.com/stemsi/cq-evaluator/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventReady     Event = "ready"
	EventEvaluated Event = "evaluated"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// ReadyResponse is sent once the stream is subscribed to result updates.
type ReadyResponse struct {
	Event Event `json:"event"`
}

// EvaluatedResponse announces a result that reached a terminal status.
type EvaluatedResponse struct {
	Event Event                 `json:"event"`
	Data  model.EvaluationEvent `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
