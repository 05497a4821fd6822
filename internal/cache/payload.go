package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/sunset-stats/internal/domain"
)

// payload is the serialized form shared by the durable backends. The expiry
// travels with the value so a read can reject stale entries even when the
// store's own TTL has not fired yet.
type payload struct {
	Result    domain.SunsetResult `json:"result"`
	ExpiresAt time.Time           `json:"expires_at"`
}

func encode(result domain.SunsetResult, expiresAt time.Time) ([]byte, error) {
	b, err := json.Marshal(payload{Result: result, ExpiresAt: expiresAt.UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode cache payload: %w", err)
	}
	return b, nil
}

func decode(b []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return payload{}, fmt.Errorf("decode cache payload: %w", err)
	}
	return p, nil
}
