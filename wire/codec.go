// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// SchemaVersion is carried on every body so additive field changes never
// require a new message Type.
type SchemaVersion uint16

// CurrentSchemaVersion is the schema version this build produces.
const CurrentSchemaVersion SchemaVersion = 1

// Codec marshals and unmarshals message bodies. The default Codec is
// JSON-backed, schema-checked via struct tags and CurrentSchemaVersion,
// the same shape the teacher's own codec.Codec uses for consensus
// message bodies.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the Codec used for every Hive message body.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

// envelope wraps every message body with its schema version so unknown
// required tags can be rejected without guessing the message's Go type.
type envelope struct {
	Version SchemaVersion   `json:"v"`
	Payload json.RawMessage `json:"payload"`
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshal payload")
	}
	return json.Marshal(envelope{Version: CurrentSchemaVersion, Payload: payload})
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		// Unknown top-level fields are a decode error (unknown required
		// tag); unknown fields *within* Payload are left to v's own
		// json.Unmarshal, which silently ignores them per spec §6.1.
		return errors.Wrap(err, "wire: decode envelope")
	}
	if env.Version != CurrentSchemaVersion {
		return errors.Newf("wire: unsupported schema version %d", env.Version)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return errors.Wrap(err, "wire: decode payload")
	}
	return nil
}
