// Package resultstore defines the port for offloading result pickles that
// exceed an inline-size threshold to blob storage, replacing the inline
// bytes with a reference URI.
package resultstore

import "context"

// Store offloads and retrieves large result blobs.
type Store interface {
	// Put uploads data under a coordinator-chosen key and returns a
	// reference URI to embed in the job/task outcome.
	Put(ctx context.Context, key string, data []byte) (ref string, err error)

	// Get downloads the blob referenced by ref.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// InlineThresholdBytes is the size above which a result pickle is offloaded
// instead of carried inline in a state-update RPC.
const InlineThresholdBytes = 256 * 1024
