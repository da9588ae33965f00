package network

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxTrailPoints bounds decoded trail history per message.
const MaxTrailPoints = 1024

// EncodeTrail serializes trail points as a msgpack array.
func EncodeTrail(points []TrailPoint) ([]byte, error) {
	data, err := msgpack.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("encode trail: %w", err)
	}
	return data, nil
}

// DecodeTrail parses a msgpack trail blob. An empty blob is an empty trail.
func DecodeTrail(data []byte) ([]TrailPoint, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var points []TrailPoint
	if err := msgpack.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("decode trail: %w", err)
	}
	if len(points) > MaxTrailPoints {
		return nil, fmt.Errorf("decode trail: %d points exceeds limit %d", len(points), MaxTrailPoints)
	}
	return points, nil
}
