package history

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// cursor is the opaque continuation token: a base64 encoding
// of the last row's sort key, continuing strictly after it in newest-first
// order.
type cursor struct {
	LastTimestamp   time.Time `json:"last_timestamp"`
	LastLastChanged time.Time `json:"last_last_changed"`
}

func encodeCursor(c cursor) string {
	b, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, err
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return cursor{}, err
	}
	return c, nil
}
