package tools

// Result is the unified return type from tool execution. Every invocation
// produces two renderings of the same outcome: a JSON envelope for
// machines and a text block for humans.
type Result struct {
	JSON    string `json:"json"`           // machine-readable envelope
	Text    string `json:"text,omitempty"` // human-readable rendering
	IsError bool   `json:"is_error"`       // marks error
	Err     error  `json:"-"`              // internal error (not serialized)
}

func NewResult(jsonPayload, text string) *Result {
	return &Result{JSON: jsonPayload, Text: text}
}

// ErrorResult renders message as a failed envelope with empty list results.
func ErrorResult(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    message,
		IsError: true,
	}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
