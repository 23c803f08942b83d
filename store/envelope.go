package store

import "github.com/BumpyClock/tasque/store/tsqerr"

// Envelope is the machine-mode response shape (spec.md §6). Only the shape
// is part of the core; rendering it to stdout and the human-mode text
// format are CLI front-end concerns (spec.md §1).
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Command       string          `json:"command"`
	OK            bool            `json:"ok"`
	Data          any             `json:"data,omitempty"`
	Error         *EnvelopeError  `json:"error,omitempty"`
}

// EnvelopeError is the error half of an Envelope.
type EnvelopeError struct {
	Code    tsqerr.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewEnvelope wraps a successful result.
func NewEnvelope(command string, data any) Envelope {
	return Envelope{SchemaVersion: SchemaVersion, Command: command, OK: true, Data: data}
}

// NewErrorEnvelope wraps a failed command's error.
func NewErrorEnvelope(command string, err error) Envelope {
	code := tsqerr.CodeOf(err)
	if code == "" {
		code = tsqerr.InternalError
	}
	var details map[string]any
	if te, ok := err.(*tsqerr.Error); ok {
		details = te.Details
	}
	return Envelope{
		SchemaVersion: SchemaVersion,
		Command:       command,
		OK:            false,
		Error: &EnvelopeError{
			Code:    code,
			Message: err.Error(),
			Details: details,
		},
	}
}
