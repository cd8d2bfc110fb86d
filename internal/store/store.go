// Package store provides crash-safe caching of the last-known-good
// orderbook snapshot, for cold start and ingester-outage recovery (§6.4).
//
// The cache file holds a 4-byte little-endian batch id followed by the
// raw §4.1-encoded order bytes, optionally gzip-compressed. Writes use
// atomic file replacement (write to .tmp, then rename) to prevent
// corruption from partial writes or crashes mid-save, the same pattern
// the teacher's position store uses for JSON files.
package store

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Fingerprint hashes the raw §4.1-encoded order bytes of a snapshot, giving
// callers a cheap way to tell two snapshots apart without comparing the
// full payload — used as the API's ETag and the WebSocket snapshot event's
// change marker.
func Fingerprint(data []byte) common.Hash {
	return crypto.Keccak256Hash(data)
}

// gzipMagic is the two leading bytes of every gzip stream, sniffed on
// read to decide whether the cached payload needs decompressing.
var gzipMagic = []byte{0x1f, 0x8b}

// Cache persists the most recent orderbook snapshot to a single file.
// All operations are mutex-protected to prevent concurrent file
// corruption.
type Cache struct {
	path      string
	gzipWrite bool
	mu        sync.Mutex
}

// Open creates a Cache backed by the given file path, creating its parent
// directory if necessary. gzipWrite controls whether Save compresses the
// payload; Load transparently handles either representation regardless of
// this setting, so changing it between runs never breaks a Load.
func Open(path string, gzipWrite bool) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{path: path, gzipWrite: gzipWrite}, nil
}

// Save atomically persists the batch id and raw encoded order bytes.
func (c *Cache) Save(batchID uint32, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := data
	if c.gzipWrite {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return fmt.Errorf("gzip snapshot: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("gzip snapshot: %w", err)
		}
		payload = buf.Bytes()
	}

	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], batchID)
	copy(out[4:], payload)

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write snapshot cache: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// Load restores the batch id and raw encoded order bytes from disk,
// transparently gunzipping if the payload sniffs as gzip. Returns
// (0, nil, nil) if no cache file exists yet.
func (c *Cache) Load() (uint32, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("read snapshot cache: %w", err)
	}
	if len(raw) < 4 {
		return 0, nil, fmt.Errorf("snapshot cache too short: %d bytes", len(raw))
	}

	batchID := binary.LittleEndian.Uint32(raw[0:4])
	payload := raw[4:]

	if len(payload) >= 2 && bytes.Equal(payload[0:2], gzipMagic) {
		gz, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return 0, nil, fmt.Errorf("open gzip snapshot cache: %w", err)
		}
		defer gz.Close()
		data, err := io.ReadAll(gz)
		if err != nil {
			return 0, nil, fmt.Errorf("read gzip snapshot cache: %w", err)
		}
		return batchID, data, nil
	}
	return batchID, payload, nil
}
