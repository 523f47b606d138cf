// Package embedcache layers caches in front of an ai.IEmbedder. Entries are
// keyed by model, task type and a hash of the exact input text.
package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
)

type cacheKey struct {
	model       string
	taskType    string
	contentHash string
}

func newCacheKey(modelName, taskType, text string) cacheKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	sum := sha256.Sum256([]byte(text))
	return cacheKey{model: modelName, taskType: taskType, contentHash: hex.EncodeToString(sum[:])}
}

func (k cacheKey) String() string {
	return "embed:" + k.model + ":" + k.taskType + ":" + k.contentHash
}

// Stats counts lookups served by one cache layer.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

type counters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
