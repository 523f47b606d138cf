package dedup

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// LSHIndex buckets MinHash signatures by band so only documents sharing a band
// become candidate pairs.
//
// A pair with true Jaccard s collides in at least one band with probability
// 1-(1-s^r)^b for b bands of r rows. Raising b (lowering r) finds more true
// near-duplicates but also returns more dissimilar candidates, so callers must
// verify every candidate with EstimateJaccard.
//
// Writers are serialized by writeMu. Each band has its own RWMutex, so a reader
// only waits for a writer touching the same band.
type LSHIndex struct {
	numBands    int
	rowsPerBand int
	bands       []*lshBand

	writeMu sync.Mutex
	mu      sync.RWMutex
	sigs    map[string]Signature
}

type lshBand struct {
	mu      sync.RWMutex
	buckets map[uint64]map[string]struct{}
}

func NewLSHIndex(numBands, rowsPerBand int) *LSHIndex {
	bands := make([]*lshBand, numBands)
	for i := range bands {
		bands[i] = &lshBand{buckets: make(map[uint64]map[string]struct{})}
	}
	return &LSHIndex{
		numBands:    numBands,
		rowsPerBand: rowsPerBand,
		bands:       bands,
		sigs:        make(map[string]Signature),
	}
}

// Add indexes a signature under id, replacing any previous entry for id.
func (l *LSHIndex) Add(id string, sig Signature) error {
	if err := l.checkLen(sig); err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.mu.Lock()
	old, exists := l.sigs[id]
	l.sigs[id] = sig
	l.mu.Unlock()

	for band, b := range l.bands {
		var oldDigest uint64
		if exists {
			oldDigest = l.bandDigest(old, band)
		}
		digest := l.bandDigest(sig, band)
		b.mu.Lock()
		if exists {
			b.removeLocked(oldDigest, id)
		}
		bucket := b.buckets[digest]
		if bucket == nil {
			bucket = make(map[string]struct{})
			b.buckets[digest] = bucket
		}
		bucket[id] = struct{}{}
		b.mu.Unlock()
	}
	return nil
}

// Remove drops id from every band. Unknown ids are ignored.
func (l *LSHIndex) Remove(id string) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.mu.Lock()
	sig, exists := l.sigs[id]
	delete(l.sigs, id)
	l.mu.Unlock()
	if !exists {
		return
	}
	for band, b := range l.bands {
		digest := l.bandDigest(sig, band)
		b.mu.Lock()
		b.removeLocked(digest, id)
		b.mu.Unlock()
	}
}

// Candidates returns the sorted ids sharing at least one band bucket with sig,
// excluding excludeID.
func (l *LSHIndex) Candidates(sig Signature, excludeID string) []string {
	if l.checkLen(sig) != nil {
		return nil
	}
	seen := make(map[string]struct{})
	for band, b := range l.bands {
		digest := l.bandDigest(sig, band)
		b.mu.RLock()
		for id := range b.buckets[digest] {
			if id != excludeID {
				seen[id] = struct{}{}
			}
		}
		b.mu.RUnlock()
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Signature returns the indexed signature for id.
func (l *LSHIndex) Signature(id string) (Signature, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sig, ok := l.sigs[id]
	return sig, ok
}

// IDs returns every indexed id in sorted order.
func (l *LSHIndex) IDs() []string {
	l.mu.RLock()
	ids := make([]string, 0, len(l.sigs))
	for id := range l.sigs {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (l *LSHIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sigs)
}

// LSHStats contains statistics about the index.
type LSHStats struct {
	NumSignatures int `json:"num_signatures"`
	NumBands      int `json:"num_bands"`
	RowsPerBand   int `json:"rows_per_band"`
	TotalBuckets  int `json:"total_buckets"`
	MaxBucketSize int `json:"max_bucket_size"`
}

func (l *LSHIndex) Stats() LSHStats {
	st := LSHStats{
		NumSignatures: l.Len(),
		NumBands:      l.numBands,
		RowsPerBand:   l.rowsPerBand,
	}
	for _, b := range l.bands {
		b.mu.RLock()
		st.TotalBuckets += len(b.buckets)
		for _, bucket := range b.buckets {
			if len(bucket) > st.MaxBucketSize {
				st.MaxBucketSize = len(bucket)
			}
		}
		b.mu.RUnlock()
	}
	return st
}

func (l *LSHIndex) checkLen(sig Signature) error {
	if want := l.numBands * l.rowsPerBand; len(sig) != want {
		return fmt.Errorf("signature length %d does not match %d bands x %d rows", len(sig), l.numBands, l.rowsPerBand)
	}
	return nil
}

// bandDigest hashes the rows of one band. The band index is mixed in so equal
// row values in different bands land in unrelated buckets.
func (l *LSHIndex) bandDigest(sig Signature, band int) uint64 {
	start := band * l.rowsPerBand
	h := fnvOffsetBasis64
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(band))
	h = fnvBytes(h, buf[:])
	for _, row := range sig[start : start+l.rowsPerBand] {
		binary.LittleEndian.PutUint64(buf[:], row)
		h = fnvBytes(h, buf[:])
	}
	return h
}

func (b *lshBand) removeLocked(digest uint64, id string) {
	bucket := b.buckets[digest]
	if bucket == nil {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(b.buckets, digest)
	}
}

func fnvBytes(h uint64, data []byte) uint64 {
	for _, c := range data {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}
