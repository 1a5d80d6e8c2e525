// edgewall/pkg/logging/errors.go

package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

type ErrorType string

const (
	ErrorTypeLoad     ErrorType = "LOAD"
	ErrorTypeValidate ErrorType = "VALIDATE"
	ErrorTypeRuntime  ErrorType = "RUNTIME"
	ErrorTypeStore    ErrorType = "STORE"
	ErrorTypeAuth     ErrorType = "AUTH"
)

// EngineError is the typed error carried across package boundaries.
// Load and validate errors are fatal for a rule-set version; runtime
// errors are resolved locally and only surface as diagnostics.
type EngineError struct {
	Type    ErrorType
	Message string
	Err     error
	Fields  map[string]interface{}
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func NewError(errType ErrorType, message string, err error, fields map[string]interface{}) *EngineError {
	return &EngineError{
		Type:    errType,
		Message: message,
		Err:     err,
		Fields:  fields,
	}
}

func LogError(logger zerolog.Logger, err error) {
	engErr, ok := err.(*EngineError)
	if !ok {
		logger.Error().Err(err).Msg(err.Error())
		return
	}

	event := logger.Error().Err(engErr.Err).
		Str("error_type", string(engErr.Type)).
		Str("message", engErr.Message)

	for k, v := range engErr.Fields {
		event = event.Interface(k, v)
	}

	event.Msg(engErr.Message)
}
