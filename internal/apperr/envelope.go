package apperr

import "net/http"

// Envelope is the body of every 4xx/5xx response.
type Envelope struct {
	ErrorCodes  []string     `json:"error_codes"`
	Description string       `json:"description"`
	Phrase      string       `json:"phrase"`
	Message     string       `json:"message"`
	Fields      []FieldError `json:"fields"`
}

// Render converts err into an HTTP status and envelope. Internal errors never
// leak their cause to the client.
func Render(err error) (int, Envelope) {
	e := As(err)
	status := e.Kind.Status()

	codes := []string{e.Code}
	for _, f := range e.Fields {
		if f.ErrorCode != "" && f.ErrorCode != e.Code {
			codes = append(codes, f.ErrorCode)
		}
	}

	fields := e.Fields
	if fields == nil {
		fields = []FieldError{}
	}

	message := e.Message
	if e.Kind == KindInternal {
		message = ErrInternal.Message
		codes = []string{ErrInternal.Code}
		fields = []FieldError{}
	}

	return status, Envelope{
		ErrorCodes:  codes,
		Description: e.Kind.String(),
		Phrase:      http.StatusText(status),
		Message:     message,
		Fields:      fields,
	}
}
