// edgewall/pkg/compiler/parser.go

package compiler

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"edgewall/pkg/logging"
)

// Load errors. A payload that fails to decode leaves the previous rule
// set active; a partially decoded graph is never installed.
var (
	ErrBadEncoding   = errors.New("invalid base64 payload")
	ErrBadCompressed = errors.New("invalid gzip payload")
	ErrBadJSON       = errors.New("invalid JSON payload")
	ErrUnknownFormat = errors.New("payload matches neither graph nor legacy format")
)

const rawPrefix = "raw:"

// Parse decodes a packed rule payload into a graph. The payload is
// either "raw:" + base64(JSON) or base64(gzip(JSON)); the JSON is
// either the graph {nodes, edges} shape or the legacy compact {v, r, d}
// shape, which is converted ahead of validation.
func Parse(packed []byte) (*GraphPayload, error) {
	raw := strings.TrimSpace(string(packed))

	var jsonData []byte
	if strings.HasPrefix(raw, rawPrefix) {
		decoded, err := base64.StdEncoding.DecodeString(raw[len(rawPrefix):])
		if err != nil {
			return nil, loadErr(ErrBadEncoding, err)
		}
		jsonData = decoded
	} else {
		compressed, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, loadErr(ErrBadEncoding, err)
		}
		zr, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, loadErr(ErrBadCompressed, err)
		}
		jsonData, err = io.ReadAll(zr)
		if err != nil {
			return nil, loadErr(ErrBadCompressed, err)
		}
		if err := zr.Close(); err != nil {
			return nil, loadErr(ErrBadCompressed, err)
		}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, loadErr(ErrBadJSON, err)
	}

	switch {
	case probe["nodes"] != nil && probe["edges"] != nil:
		var payload GraphPayload
		if err := json.Unmarshal(jsonData, &payload); err != nil {
			return nil, loadErr(ErrBadJSON, err)
		}
		return &payload, nil

	case probe["v"] != nil && probe["d"] != nil:
		logging.Logger.Info().Msg("legacy packed rule format detected, converting")
		var legacy legacyPacked
		if err := json.Unmarshal(jsonData, &legacy); err != nil {
			return nil, loadErr(ErrBadJSON, err)
		}
		return convertLegacy(&legacy)

	default:
		return nil, loadErr(ErrUnknownFormat, nil)
	}
}

// Load parses and validates a packed payload in one step. This is the
// consumer-facing entry point for rule-set storage reads.
func Load(packed []byte) (*ValidatedGraph, error) {
	payload, err := Parse(packed)
	if err != nil {
		return nil, err
	}
	return Validate(payload)
}

func loadErr(kind, cause error) error {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %v", kind, cause)
	}
	return logging.NewError(logging.ErrorTypeLoad, kind.Error(), err, nil)
}
