package dedup

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// NearDetector keeps a persistent LSH index of documents and answers
// near-duplicate queries against it.
type NearDetector struct {
	cfg   Config
	sk    *sketcher
	index *LSHIndex

	mu        sync.Mutex
	hashes    map[string]string
	noContent map[string]struct{}
}

// NearStats describes the index held by a NearDetector.
type NearStats struct {
	LSHStats
	NoContent int `json:"no_content"`
}

func NewNearDetector(cfg Config, opts ...Option) (*NearDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(cfg, opts)
	return &NearDetector{
		cfg:       cfg,
		sk:        newSketcher(cfg, o.cache),
		index:     NewLSHIndex(cfg.NumBands, cfg.RowsPerBand),
		hashes:    make(map[string]string),
		noContent: make(map[string]struct{}),
	}, nil
}

// AddDocument indexes text under id. Re-adding unchanged content is a no-op;
// changed content replaces the old entry. Empty text is recorded, not indexed.
func (d *NearDetector) AddDocument(ctx context.Context, id, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	normalized := Normalize(text)
	if normalized == "" {
		d.index.Remove(id)
		delete(d.hashes, id)
		d.noContent[id] = struct{}{}
		logutil.GetLogger(ctx).Debug("document has no content, skip indexing", zap.String("doc_id", id))
		return nil
	}
	hash := hashNormalized(normalized)
	if old, ok := d.hashes[id]; ok && old == hash {
		return nil
	}
	sig, err := d.sk.sign(normalized, hash)
	if err != nil {
		return err
	}
	if err := d.index.Add(id, sig); err != nil {
		return err
	}
	d.hashes[id] = hash
	delete(d.noContent, id)
	return nil
}

func (d *NearDetector) RemoveDocument(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index.Remove(id)
	delete(d.hashes, id)
	delete(d.noContent, id)
}

// CheckDuplicate returns indexed documents whose estimated Jaccard with text is at
// least threshold, best first. The query itself is not indexed.
func (d *NearDetector) CheckDuplicate(ctx context.Context, text string, threshold float64) ([]Match, error) {
	if err := validateThreshold("threshold", threshold); err != nil {
		return nil, err
	}
	matches := make([]Match, 0)
	_, sig, err := d.sk.sketchText(text)
	if err != nil {
		if IsNoContent(err) {
			return matches, nil
		}
		return nil, err
	}
	for i, id := range d.index.Candidates(sig, "") {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		other, ok := d.index.Signature(id)
		if !ok {
			continue
		}
		if score := EstimateJaccard(sig, other); score >= threshold {
			matches = append(matches, Match{DocumentID: id, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].DocumentID < matches[j].DocumentID
	})
	return matches, nil
}

// FindAllDuplicates reports every indexed pair at or above threshold once, sorted.
// On cancellation the relations found so far are returned with the context error.
func (d *NearDetector) FindAllDuplicates(ctx context.Context, threshold float64) ([]Relation, error) {
	if err := validateThreshold("threshold", threshold); err != nil {
		return nil, err
	}
	return nearRelations(ctx, d.index, threshold, nil, nil)
}

// BatchDeduplicate groups exactly docs by near-duplicate similarity. It uses a
// scratch index, so the persistent index is neither read nor modified.
func (d *NearDetector) BatchDeduplicate(ctx context.Context, docs []DocumentRecord, threshold float64) (*BatchResult, error) {
	if err := validateThreshold("threshold", threshold); err != nil {
		return nil, err
	}
	cfg := d.cfg
	cfg.EnableExact = false
	cfg.EnableSemantic = false
	cfg.EnableNear = true
	cfg.NearThreshold = threshold
	p := &pipeline{cfg: cfg, sk: d.sk}
	return p.run(ctx, docs), nil
}

func (d *NearDetector) Len() int {
	return d.index.Len()
}

func (d *NearDetector) Stats() NearStats {
	d.mu.Lock()
	noContent := len(d.noContent)
	d.mu.Unlock()
	return NearStats{LSHStats: d.index.Stats(), NoContent: noContent}
}

// nearRelations verifies LSH candidates for every indexed id. Each unordered pair is
// visited once; skip filters pairs already related by an earlier tier.
func nearRelations(ctx context.Context, index *LSHIndex, threshold float64, skip func(a, b string) bool, stats *BatchStats) ([]Relation, error) {
	relations := make([]Relation, 0)
	for _, id := range index.IDs() {
		if err := ctx.Err(); err != nil {
			return relations, err
		}
		sig, ok := index.Signature(id)
		if !ok {
			continue
		}
		for _, other := range index.Candidates(sig, id) {
			if other <= id {
				continue
			}
			if stats != nil {
				stats.CandidatePairs++
			}
			if skip != nil && skip(id, other) {
				continue
			}
			otherSig, ok := index.Signature(other)
			if !ok {
				continue
			}
			if score := EstimateJaccard(sig, otherSig); score >= threshold {
				relations = append(relations, newRelation(id, other, TierNear, score))
			}
		}
	}
	return relations, nil
}
