// Package util holds small generic helpers shared by the camera packages.
package util

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clone size if cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// FixedSize is the set of pixel value types with a fixed big-endian encoding.
type FixedSize interface {
	uint8 | int16 | int32 | int64 | float32 | float64
}

// DecodeBigEndian converts a big-endian payload into values of T.
// The payload length must be a multiple of the size of T.
func DecodeBigEndian[T FixedSize](raw []byte) ([]T, error) {
	var zero T
	size := binary.Size(zero)
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("util: payload of %d bytes is not a multiple of %d", len(raw), size)
	}

	out := make([]T, len(raw)/size)
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, out); err != nil {
		return nil, fmt.Errorf("util: decode big-endian payload: %w", err)
	}

	return out, nil
}
