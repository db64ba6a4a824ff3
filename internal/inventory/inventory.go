// Package inventory provides the content sources that scheduled row refreshes
// materialize into the cache.
package inventory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Source when the row does not exist. The row
// refresher retires rows whose source reports ErrNotFound.
var ErrNotFound = errors.New("inventory row not found")

// Row is the materialized form of an inventory entry.
type Row struct {
	ID     string         `json:"id"`
	Data   map[string]any `json:"data"`
	Cached float64        `json:"cached"`
}

// Source loads inventory rows by id.
type Source interface {
	Load(ctx context.Context, id string) (*Row, error)
}

var timeNow = time.Now

func cachedAt() float64 {
	return float64(timeNow().UnixMicro()) / 1e6
}

// StaticSource synthesizes a row for any id. It is used when no database is
// configured.
type StaticSource struct {
	// Data is copied into every row. Nil yields a placeholder payload.
	Data map[string]any
}

// Load returns a synthetic row for id.
func (s StaticSource) Load(ctx context.Context, id string) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}
	data := make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	if len(data) == 0 {
		data["description"] = "data to cache..."
	}
	return &Row{ID: id, Data: data, Cached: cachedAt()}, nil
}
