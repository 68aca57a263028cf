package dto

// ErrorDetail carries the error taxonomy used by the completion endpoints.
type ErrorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}
