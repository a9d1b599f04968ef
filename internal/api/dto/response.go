package dto

// Envelope is the uniform response wrapper for every endpoint.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data interface{}) Envelope {
	return Envelope{Success: true, Data: data}
}

// OKMessage wraps data plus a human-readable message.
func OKMessage(message string, data interface{}) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

// Failure builds an error envelope.
func Failure(message string, errs []string) Envelope {
	return Envelope{Success: false, Message: message, Errors: errs}
}
