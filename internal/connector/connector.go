// Package connector provides the boundary to external task systems.
// The core never speaks an external protocol directly; adapters only
// see the raw payload a connector hands back.
package connector

import "context"

// Connector fetches one raw payload from an external system. An error
// means the fetch failed and the source state is unknown. Payloads may
// be structured JSON or a markdown/plain-text rendering of the same
// data; the adapter owns parsing.
type Connector interface {
	FetchRaw(ctx context.Context, query string) ([]byte, error)
}
