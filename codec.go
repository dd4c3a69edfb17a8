package vizsession

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// sessionEnvelope is the record written by key-value stores, which have no
// columns for the timestamps.
type sessionEnvelope struct {
	Values    map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
}

func init() {
	gob.Register(map[string]any{})
	gob.Register(sessionEnvelope{})
}

// encodeValues returns the gob encoding of s.Values, or nil for an empty
// session. The result is only valid until release is called.
func encodeValues(s *Session) (data []byte, release func(), err error) {
	if len(s.Values) == 0 {
		return nil, func() {}, nil
	}
	if s.encoded != nil {
		return s.encoded, func() {}, nil
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	if err := gob.NewEncoder(buf).Encode(s.Values); err != nil {
		PutBuffer(buf)
		return nil, nil, fmt.Errorf("failed to encode session data: %w", err)
	}
	return buf.Bytes(), func() { PutBuffer(buf) }, nil
}

// decodeValues decodes data written by encodeValues. Empty data yields an
// empty map.
func decodeValues(data []byte) (map[string]any, error) {
	var values map[string]any
	if len(data) > 0 {
		reader := readerPool.Get().(*bytes.Reader)
		reader.Reset(data)
		defer readerPool.Put(reader)

		if err := gob.NewDecoder(reader).Decode(&values); err != nil {
			return nil, fmt.Errorf("failed to decode session data: %w", err)
		}
	}
	if values == nil {
		values = make(map[string]any)
	}
	return values, nil
}

// encodeEnvelope returns the gob encoding of the whole session. The result is
// only valid until release is called.
func encodeEnvelope(s *Session) (data []byte, release func(), err error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	env := sessionEnvelope{
		Values:    s.Values,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	if err := gob.NewEncoder(buf).Encode(env); err != nil {
		PutBuffer(buf)
		return nil, nil, fmt.Errorf("failed to encode session data: %w", err)
	}
	return buf.Bytes(), func() { PutBuffer(buf) }, nil
}

func decodeEnvelope(id string, data []byte) (*Session, error) {
	var env sessionEnvelope

	reader := readerPool.Get().(*bytes.Reader)
	reader.Reset(data)
	defer readerPool.Put(reader)

	if err := gob.NewDecoder(reader).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	if env.Values == nil {
		env.Values = make(map[string]any)
	}

	return &Session{
		ID:        id,
		Values:    env.Values,
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
	}, nil
}
