// edgewall/pkg/logging/errors_test.go

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	tests := []struct {
		name        string
		errType     ErrorType
		message     string
		err         error
		fields      map[string]interface{}
		expectedMsg string
	}{
		{
			name:        "Load error",
			errType:     ErrorTypeLoad,
			message:     "Failed to decode payload",
			err:         errors.New("invalid base64"),
			fields:      map[string]interface{}{"size": 42},
			expectedMsg: "LOAD: Failed to decode payload",
		},
		{
			name:        "Validate error",
			errType:     ErrorTypeValidate,
			message:     "Graph has a cycle",
			err:         nil,
			fields:      nil,
			expectedMsg: "VALIDATE: Graph has a cycle",
		},
		{
			name:        "Store error",
			errType:     ErrorTypeStore,
			message:     "Rule key missing",
			err:         errors.New("redis: nil"),
			fields:      map[string]interface{}{"key": "rules_packed"},
			expectedMsg: "STORE: Rule key missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engErr := NewError(tt.errType, tt.message, tt.err, tt.fields)

			assert.Equal(t, tt.errType, engErr.Type)
			assert.Equal(t, tt.message, engErr.Message)
			assert.Equal(t, tt.err, engErr.Err)
			assert.Equal(t, tt.fields, engErr.Fields)
			assert.Equal(t, tt.expectedMsg, engErr.Error())

			if tt.err != nil {
				assert.ErrorIs(t, engErr, tt.err)
			}
		})
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogError(logger, NewError(ErrorTypeAuth, "signature mismatch",
		errors.New("hmac"), map[string]interface{}{"pop": "IAD"}))

	var entry map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "AUTH", entry["error_type"])
	assert.Equal(t, "signature mismatch", entry["message"])
	assert.Equal(t, "IAD", entry["pop"])
}

func TestLogErrorPlain(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogError(logger, errors.New("plain failure"))

	var entry map[string]interface{}
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plain failure", entry["error"])
	assert.NotContains(t, entry, "error_type")
}
