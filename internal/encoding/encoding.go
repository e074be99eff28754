// Package encoding provides the binary and JSON codecs shared by the store,
// the vector index and the graph engine: dense float32 vectors go to BLOB
// columns, tags/metadata go to JSON TEXT columns.
package encoding

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned when a vector is nil, empty, or contains NaN/Inf.
var ErrInvalidVector = errors.New("invalid vector")

// EncodeVector serializes a float32 vector to a little-endian length-prefixed
// byte slice suitable for a SQLite BLOB column.
func EncodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}

	buf := new(bytes.Buffer)
	if len(vector) > math.MaxInt32 {
		return nil, fmt.Errorf("vector too large: %d elements exceeds maximum", len(vector))
	}
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vector))); err != nil {
		return nil, fmt.Errorf("encode vector length: %w", err)
	}
	for _, val := range vector {
		if err := binary.Write(buf, binary.LittleEndian, val); err != nil {
			return nil, fmt.Errorf("encode vector value: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeVector reverses EncodeVector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}

	buf := bytes.NewReader(data)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("decode vector length: %w", err)
	}
	if length < 0 {
		return nil, ErrInvalidVector
	}
	if length == 0 {
		return []float32{}, nil
	}

	expected := int(length) * 4
	if buf.Len() < expected {
		return nil, ErrInvalidVector
	}

	vector := make([]float32, length)
	for i := int32(0); i < length; i++ {
		if err := binary.Read(buf, binary.LittleEndian, &vector[i]); err != nil {
			return nil, fmt.Errorf("decode vector value at %d: %w", i, err)
		}
	}
	return vector, nil
}

// ValidateVector rejects nil, empty, NaN and Inf vectors.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return ErrInvalidVector
	}
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidVector
		}
	}
	return nil
}

// EncodeJSON marshals any value to a JSON string, returning "" for nil/empty.
func EncodeJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(data), nil
}

// DecodeTags decodes a JSON array of strings, tolerating an empty string.
func DecodeTags(jsonStr string) ([]string, error) {
	if jsonStr == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(jsonStr), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

// DecodeMetadata decodes a JSON object into a string-keyed bag, tolerating
// an empty string.
func DecodeMetadata(jsonStr string) (map[string]string, error) {
	if jsonStr == "" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(jsonStr), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// DecodeStrings decodes a JSON array of strings (used for entity lists,
// shared-entities, etc.), tolerating an empty string.
func DecodeStrings(jsonStr string) ([]string, error) {
	return DecodeTags(jsonStr)
}
