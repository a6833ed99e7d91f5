package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const recordFormatVersion = 1

const (
	flagEmailVerified = 1 << 0
	flagActive        = 1 << 1
)

// maxFieldLen is the ceiling the 1-byte length prefix imposes on every
// string field.
const maxFieldLen = 255

// clip bounds a device metadata value at the field limit. Metadata feeds
// heuristics only, so an oversized value (real browser user-agents can
// run past 255 bytes) is stored truncated rather than failing the write.
func clip(s string) string {
	if len(s) > maxFieldLen {
		return s[:maxFieldLen]
	}
	return s
}

// Field order is fixed: six length-prefixed strings, one flags byte, the
// refresh hash, then three big-endian millisecond timestamps. The refresh
// hash offset is recomputed by the redeem script, so any layout change must
// be mirrored there.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersion)

	// UserID and Email are identity data and must survive intact; the
	// remaining fields are advisory metadata and get clipped to fit.
	for _, field := range []struct {
		name     string
		value    string
		advisory bool
	}{
		{"userID", r.UserID, false},
		{"email", r.Email, false},
		{"name", r.Name, true},
		{"deviceID", r.DeviceID, true},
		{"ip", r.IP, true},
		{"userAgent", r.UserAgent, true},
	} {
		value := field.value
		if field.advisory {
			value = clip(value)
		} else if len(value) > maxFieldLen {
			return nil, fmt.Errorf("%s too long", field.name)
		}
		buf.WriteByte(byte(len(value)))
		buf.WriteString(value)
	}

	var flags byte
	if r.EmailVerified {
		flags |= flagEmailVerified
	}
	if r.IsActive {
		flags |= flagActive
	}
	buf.WriteByte(flags)

	buf.Write(r.RefreshHash[:])

	for _, ts := range []int64{r.CreatedAt, r.ExpiresAt, r.LastActivity} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a stored record. Every parse failure is reported as
// [ErrRecordCorrupt] so callers can distinguish integrity problems from a
// plain miss. The session id is not part of the payload; callers fill it
// from the key.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty payload", ErrRecordCorrupt)
	}
	if version != recordFormatVersion {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrRecordCorrupt, version)
	}

	r := &Record{}

	fields := []*string{&r.UserID, &r.Email, &r.Name, &r.DeviceID, &r.IP, &r.UserAgent}
	for _, dst := range fields {
		size, err := reader.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated field length", ErrRecordCorrupt)
		}
		raw := make([]byte, size)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, fmt.Errorf("%w: truncated field", ErrRecordCorrupt)
		}
		*dst = string(raw)
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated flags", ErrRecordCorrupt)
	}
	r.EmailVerified = flags&flagEmailVerified != 0
	r.IsActive = flags&flagActive != 0

	if _, err := io.ReadFull(reader, r.RefreshHash[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated refresh hash", ErrRecordCorrupt)
	}

	for _, dst := range []*int64{&r.CreatedAt, &r.ExpiresAt, &r.LastActivity} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, fmt.Errorf("%w: truncated timestamp", ErrRecordCorrupt)
		}
	}

	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrRecordCorrupt, reader.Len())
	}

	return r, nil
}

// Complete reports whether the decoded record carries everything a valid
// session needs. A record that decodes but fails this check is malformed,
// which callers treat differently from not-found.
func (r *Record) Complete() bool {
	return r.UserID != "" && r.Email != "" && r.CreatedAt > 0 && r.ExpiresAt > 0
}
