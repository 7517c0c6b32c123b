// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the Hive control-plane frame format: a 4-byte
// magic tag, an odd message-type number, and a self-describing JSON body,
// bounded before any allocation proportional to the input is made.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Magic is the 4-byte tag every Hive control frame begins with. Frames
// lacking it are not ours and must be returned to the host untouched.
const Magic uint32 = 0x48495645

// MaxFrameSize bounds the total encoded frame, checked before decode.
const MaxFrameSize = 64 * 1024

// MaxNestingDepth bounds the JSON body's object/array nesting, checked
// token-by-token before the body is unmarshalled into a Go value.
const MaxNestingDepth = 16

// Type is a Hive message type number. Numbers are odd and drawn from a
// private range so they never collide with the host node's own custom
// message types.
type Type uint16

const (
	TypeHello            Type = 0x4801
	TypeChallenge        Type = 0x4803
	TypeAttest           Type = 0x4805
	TypeWelcome          Type = 0x4807
	TypeGossip           Type = 0x4809
	TypeStateHash        Type = 0x480B
	TypeFullSync         Type = 0x480D
	TypeIntent           Type = 0x480F
	TypeIntentAbort      Type = 0x4811
	TypeVouch            Type = 0x4813
	TypePromotionRequest Type = 0x4815
	TypePromotion        Type = 0x4817
	TypeBan              Type = 0x4819
)

func (t Type) odd() bool { return t&1 == 1 }

// Errors returned by this package. Malformed/oversize frames are always
// dropped by the caller, never escalated; see the package doc on Decode.
var (
	ErrBadMagic    = errors.New("wire: magic tag mismatch")
	ErrOversize    = errors.New("wire: frame exceeds maximum size")
	ErrTooDeep     = errors.New("wire: body nesting exceeds maximum depth")
	ErrBadType     = errors.New("wire: message type is not odd or is unknown")
	ErrShortHeader = errors.New("wire: frame shorter than header")
)

// headerLen is magic(4) + type(2) + bodyLen(4).
const headerLen = 4 + 2 + 4

// Frame is a decoded, but not yet body-unmarshalled, control message.
type Frame struct {
	Type Type
	Body []byte
}

// HasMagic reports whether b begins with the Hive magic tag. This is the
// dispatcher's very first test on any custom-message event: a frame
// failing it is not ours and is returned to the host untouched, with no
// state change of any kind.
func HasMagic(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	return binary.BigEndian.Uint32(b[:4]) == Magic
}

// Encode serializes a frame: magic, type, length-prefixed body.
func Encode(t Type, body []byte) ([]byte, error) {
	if !t.odd() {
		return nil, errors.Wrapf(ErrBadType, "type %#x", t)
	}
	total := headerLen + len(body)
	if total > MaxFrameSize {
		return nil, errors.Wrapf(ErrOversize, "%d bytes", total)
	}
	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], Magic)
	binary.BigEndian.PutUint16(out[4:6], uint16(t))
	binary.BigEndian.PutUint32(out[6:10], uint32(len(body)))
	copy(out[10:], body)
	return out, nil
}

// Decode parses a raw frame. It enforces the size cap before touching the
// body, then the magic tag, then the declared type, then the nesting
// depth of the JSON body — in that order, so no step does work
// proportional to attacker-controlled input before the cheaper checks
// have passed.
func Decode(b []byte) (Frame, error) {
	if len(b) > MaxFrameSize {
		return Frame{}, errors.Wrapf(ErrOversize, "%d bytes", len(b))
	}
	if len(b) < headerLen {
		return Frame{}, ErrShortHeader
	}
	if !HasMagic(b) {
		return Frame{}, ErrBadMagic
	}
	t := Type(binary.BigEndian.Uint16(b[4:6]))
	if !t.odd() {
		return Frame{}, errors.Wrapf(ErrBadType, "type %#x", t)
	}
	bodyLen := binary.BigEndian.Uint32(b[6:10])
	if int(bodyLen) != len(b)-headerLen {
		return Frame{}, errors.New("wire: declared body length mismatch")
	}
	body := b[headerLen:]
	if err := checkNesting(body, MaxNestingDepth); err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Body: body}, nil
}

// checkNesting walks the JSON token stream without building any Go value,
// so depth is bounded before the per-message Unmarshal (which does
// allocate proportional to input) ever runs.
func checkNesting(body []byte, max int) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			break // io.EOF or malformed; Unmarshal will report the latter
		}
		switch tok.(type) {
		case json.Delim:
			d := tok.(json.Delim)
			switch d {
			case '{', '[':
				depth++
				if depth > max {
					return errors.Wrapf(ErrTooDeep, "depth %d", depth)
				}
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
