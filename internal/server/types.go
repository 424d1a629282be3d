package server

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports server liveness
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Processing codes reported by the sandbox
const (
	CodeReceived   = 100
	CodeProcessing = 150
	CodeAccepted   = 200
	CodeInvalid    = 450
)
