// Package wire hand-encodes the event bus's wire schemas (Event, Announce,
// Subscription, NamedSE3Pose, SteeringCommand, TractorState) against the
// low-level google.golang.org/protobuf/encoding/protowire primitives. There
// is no protoc toolchain available in this environment to generate message
// types from a .proto schema, so the tag/varint/length-delimited framing is
// written out by hand; the bytes produced are wire-compatible with a
// conventionally generated encoding of the same field numbers and types.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendString(b []byte, field protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, field protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, field protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed64(b []byte, field protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func appendSubmessage(b []byte, field protowire.Number, msg []byte) []byte {
	if len(msg) == 0 {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// fieldIterator walks a message's (field number, wire type, value) triples,
// calling fn for each. It stops and returns the first error fn or parsing
// itself produces.
func fieldIterator(buf []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error)) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return fmt.Errorf("wire: invalid tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]
		rest, err := fn(num, typ, buf)
		if err != nil {
			return err
		}
		buf = rest
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte) (string, []byte, error) {
	if typ != protowire.BytesType {
		return "", nil, fmt.Errorf("wire: expected bytes wire type, got %d", typ)
	}
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", nil, fmt.Errorf("wire: invalid string: %w", protowire.ParseError(n))
	}
	return s, b[n:], nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, []byte, error) {
	if typ != protowire.BytesType {
		return nil, nil, fmt.Errorf("wire: expected bytes wire type, got %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("wire: invalid bytes: %w", protowire.ParseError(n))
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, b[n:], nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, []byte, error) {
	if typ != protowire.VarintType {
		return 0, nil, fmt.Errorf("wire: expected varint wire type, got %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("wire: invalid varint: %w", protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func consumeFixed64(typ protowire.Type, b []byte) (uint64, []byte, error) {
	if typ != protowire.Fixed64Type {
		return 0, nil, fmt.Errorf("wire: expected fixed64 wire type, got %d", typ)
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("wire: invalid fixed64: %w", protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func skipField(typ protowire.Type, b []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(0, typ, b)
	if n < 0 {
		return nil, fmt.Errorf("wire: invalid field: %w", protowire.ParseError(n))
	}
	return b[n:], nil
}
