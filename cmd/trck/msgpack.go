package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encodeMsgpack is a minimal, hand-rolled MessagePack encoder for the
// handful of shapes this CLI ever emits (arrays of rows; rows are string
// keys to strings/ints/maps of strings-to-ints). No example repo in the
// retrieval pack depends on a MessagePack library, and the wire format is
// explicitly out of scope for this module's own semantics — see the
// DOMAIN STACK section of SPEC_FULL.md — so rather than fabricate a
// dependency, this covers exactly the output shape produced by buildRows
// and nothing more general.
func encodeMsgpack(rows []row) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeArrayHeader(&buf, len(rows)); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := encodeRow(&buf, r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeRow(buf *bytes.Buffer, r row) error {
	fieldCount := 1
	if r.Counts != nil {
		fieldCount++
	}
	if r.Sets != nil {
		fieldCount++
	}
	if r.HLL != nil {
		fieldCount++
	}

	if err := encodeMapHeader(buf, fieldCount); err != nil {
		return err
	}
	encodeString(buf, "group")
	encodeString(buf, r.Group)

	if r.Counts != nil {
		encodeString(buf, "counts")
		if err := encodeIntMap(buf, r.Counts); err != nil {
			return err
		}
	}
	if r.Sets != nil {
		encodeString(buf, "set_sizes")
		m := make(map[string]int64, len(r.Sets))
		for k, v := range r.Sets {
			m[k] = int64(v)
		}
		if err := encodeIntMap(buf, m); err != nil {
			return err
		}
	}
	if r.HLL != nil {
		encodeString(buf, "hll_estimates")
		m := make(map[string]int64, len(r.HLL))
		for k, v := range r.HLL {
			m[k] = int64(v)
		}
		if err := encodeIntMap(buf, m); err != nil {
			return err
		}
	}
	return nil
}

func encodeIntMap(buf *bytes.Buffer, m map[string]int64) error {
	if err := encodeMapHeader(buf, len(m)); err != nil {
		return err
	}
	for k, v := range m {
		encodeString(buf, k)
		encodeInt(buf, v)
	}
	return nil
}

func encodeArrayHeader(buf *bytes.Buffer, n int) error {
	switch {
	case n < 16:
		buf.WriteByte(0x90 | byte(n))
	case n < 1<<16:
		buf.WriteByte(0xdc)
		binary.Write(buf, binary.BigEndian, uint16(n))
	default:
		return fmt.Errorf("msgpack: array too large (%d elements)", n)
	}
	return nil
}

func encodeMapHeader(buf *bytes.Buffer, n int) error {
	switch {
	case n < 16:
		buf.WriteByte(0x80 | byte(n))
	case n < 1<<16:
		buf.WriteByte(0xde)
		binary.Write(buf, binary.BigEndian, uint16(n))
	default:
		return fmt.Errorf("msgpack: map too large (%d entries)", n)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) {
	n := len(s)
	switch {
	case n < 32:
		buf.WriteByte(0xa0 | byte(n))
	case n < 1<<8:
		buf.WriteByte(0xd9)
		buf.WriteByte(byte(n))
	default:
		buf.WriteByte(0xda)
		binary.Write(buf, binary.BigEndian, uint16(n))
	}
	buf.WriteString(s)
}

func encodeInt(buf *bytes.Buffer, v int64) {
	if v >= 0 && v <= 127 {
		buf.WriteByte(byte(v))
		return
	}
	if v < 0 && v >= -32 {
		buf.WriteByte(byte(0xe0 | (v & 0x1f)))
		return
	}
	buf.WriteByte(0xd3)
	binary.Write(buf, binary.BigEndian, v)
}
