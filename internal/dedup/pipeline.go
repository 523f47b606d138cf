package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type preparedDoc struct {
	rec       DocumentRecord
	hash      string
	sig       Signature
	noContent bool
	err       error
}

// pipeline runs the enabled tiers over one batch of documents.
type pipeline struct {
	cfg        Config
	sk         *sketcher
	embeddings EmbeddingProvider
}

type pairKey struct {
	a, b string
}

func keyOf(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

func (p *pipeline) run(ctx context.Context, input []DocumentRecord) *BatchResult {
	start := time.Now()
	logger := logutil.GetLogger(ctx)
	docs := sortDocuments(input)
	res := &BatchResult{
		Total:     len(docs),
		Groups:    make([]Group, 0),
		Relations: make([]Relation, 0),
		States:    make(map[string]DocumentState, len(docs)),
		Failed:    make(map[string]string),
	}
	for _, doc := range docs {
		res.States[doc.ID] = StateUnseen
	}
	defer func() {
		res.Stats.ProcessingTimeMs = time.Since(start).Milliseconds()
	}()

	prepared, err := p.prepare(ctx, docs)
	if err != nil {
		return p.partial(ctx, res, nil)
	}
	active := make([]*preparedDoc, 0, len(prepared))
	records := make(map[string]DocumentRecord, len(prepared))
	for i := range prepared {
		pd := &prepared[i]
		records[pd.rec.ID] = pd.rec
		switch {
		case pd.err != nil:
			res.Failed[pd.rec.ID] = pd.err.Error()
			logger.Error("prepare document failed", zap.String("doc_id", pd.rec.ID), zap.Error(pd.err))
		case pd.noContent:
			res.Stats.NoContentCount++
			logger.Debug("document has no content, counted unique", zap.String("doc_id", pd.rec.ID))
		default:
			if pd.sig != nil {
				res.States[pd.rec.ID] = StateSigned
			}
			active = append(active, pd)
		}
	}

	seen := make(map[pairKey]struct{})
	relations := make([]Relation, 0)
	record := func(rels []Relation) {
		for _, rel := range rels {
			seen[keyOf(rel.A, rel.B)] = struct{}{}
		}
		relations = append(relations, rels...)
	}
	skip := func(a, b string) bool {
		_, ok := seen[keyOf(a, b)]
		return ok
	}

	if p.cfg.EnableExact {
		rels := exactRelations(active)
		res.Stats.ExactRelations = len(rels)
		record(rels)
	}
	if p.cfg.EnableNear {
		index := NewLSHIndex(p.cfg.NumBands, p.cfg.RowsPerBand)
		for _, pd := range active {
			if err := index.Add(pd.rec.ID, pd.sig); err != nil {
				res.Failed[pd.rec.ID] = err.Error()
				continue
			}
			res.States[pd.rec.ID] = StateIndexed
		}
		rels, err := nearRelations(ctx, index, p.cfg.NearThreshold, skip, &res.Stats)
		res.Stats.NearRelations = len(rels)
		record(rels)
		if err != nil {
			return p.partial(ctx, res, relations)
		}
	}
	if p.cfg.EnableSemantic {
		rels, err := p.semanticRelations(ctx, active, skip, res)
		res.Stats.SemanticRelations = len(rels)
		record(rels)
		if err != nil {
			return p.partial(ctx, res, relations)
		}
	}

	sortRelations(relations)
	res.Relations = relations
	res.Groups = GroupRelations(relations, records)
	if res.Groups == nil {
		res.Groups = make([]Group, 0)
	}
	for id := range res.Failed {
		delete(res.States, id)
	}
	summarize(res)
	for id := range res.Failed {
		res.States[id] = StateUnseen
	}
	logger.Info("dedup run finished",
		zap.Int("total", res.Total),
		zap.Int("unique", res.Unique),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("groups", len(res.Groups)),
		zap.Bool("degraded", res.Degraded),
		zap.Duration("cost", time.Since(start)))
	return res
}

// partial marks a cancelled run. Relations found so far are kept; no groups are formed.
func (p *pipeline) partial(ctx context.Context, res *BatchResult, relations []Relation) *BatchResult {
	if relations == nil {
		relations = make([]Relation, 0)
	}
	sortRelations(relations)
	res.Partial = true
	res.Relations = relations
	res.Groups = make([]Group, 0)
	logutil.GetLogger(ctx).Warn("dedup run cancelled, result is partial",
		zap.Int("total", res.Total), zap.Int("relations", len(relations)), zap.Error(ctx.Err()))
	return res
}

func (p *pipeline) prepare(ctx context.Context, docs []DocumentRecord) ([]preparedDoc, error) {
	out := make([]preparedDoc, len(docs))
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	for i := range docs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = p.prepareOne(docs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *pipeline) prepareOne(doc DocumentRecord) (pd preparedDoc) {
	pd.rec = doc
	defer func() {
		if r := recover(); r != nil {
			pd.err = fmt.Errorf("panic while preparing document: %v", r)
		}
	}()
	normalized := Normalize(doc.Text)
	if normalized == "" {
		pd.noContent = true
		return pd
	}
	computed := hashNormalized(normalized)
	pd.hash = doc.ContentHash
	if pd.hash == "" {
		pd.hash = computed
	}
	if !p.cfg.EnableNear {
		return pd
	}
	sig, err := p.sk.sign(normalized, computed)
	if err != nil {
		pd.err = err
		return pd
	}
	pd.sig = sig
	return pd
}

func exactRelations(docs []*preparedDoc) []Relation {
	buckets := make(map[string][]string)
	for _, pd := range docs {
		buckets[pd.hash] = append(buckets[pd.hash], pd.rec.ID)
	}
	rels := make([]Relation, 0)
	for _, ids := range buckets {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				rels = append(rels, newRelation(ids[i], ids[j], TierExact, 1.0))
			}
		}
	}
	sortRelations(rels)
	return rels
}

func (p *pipeline) semanticRelations(ctx context.Context, docs []*preparedDoc, skip func(a, b string) bool, res *BatchResult) ([]Relation, error) {
	p.fillEmbeddings(ctx, docs, res)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	withVec := make([]*preparedDoc, 0, len(docs))
	for _, pd := range docs {
		if pd.rec.Embedding.Present() {
			withVec = append(withVec, pd)
			continue
		}
		res.Stats.SemanticUnavailable++
	}
	matcher := NewSemanticMatcher()
	rels := make([]Relation, 0)
	for i := 0; i < len(withVec); i++ {
		if err := ctx.Err(); err != nil {
			return rels, err
		}
		for j := i + 1; j < len(withVec); j++ {
			a, b := withVec[i].rec, withVec[j].rec
			if skip(a.ID, b.ID) {
				continue
			}
			res.Stats.SemanticComparisons++
			score, err := matcher.Similarity(a, b)
			if err != nil {
				continue
			}
			if score >= p.cfg.SemanticThreshold {
				rels = append(rels, newRelation(a.ID, b.ID, TierSemantic, score))
			}
		}
	}
	return rels, nil
}

// fillEmbeddings asks the provider for missing vectors in batches. A failed batch
// leaves its documents without embeddings and marks the run degraded.
func (p *pipeline) fillEmbeddings(ctx context.Context, docs []*preparedDoc, res *BatchResult) {
	if p.embeddings == nil {
		return
	}
	missing := make([]*preparedDoc, 0)
	for _, pd := range docs {
		if !pd.rec.Embedding.Present() {
			missing = append(missing, pd)
		}
	}
	logger := logutil.GetLogger(ctx)
	for start := 0; start < len(missing); start += p.cfg.EmbeddingBatchSize {
		if ctx.Err() != nil {
			return
		}
		end := start + p.cfg.EmbeddingBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		want := make(map[string]string, len(batch))
		for _, pd := range batch {
			want[pd.rec.ID] = pd.hash
		}
		res.Stats.EmbeddingBatches++
		vectors, stale, err := fetchEmbeddings(ctx, p.embeddings, want)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			res.Stats.EmbeddingBatchErrors++
			res.Degraded = true
			logger.Warn("fetch embeddings failed, batch excluded from semantic tier",
				zap.Int("batch_size", len(want)), zap.Error(err))
			continue
		}
		if stale > 0 {
			res.Stats.StaleEmbeddings += stale
			logger.Debug("stale embeddings ignored", zap.Int("count", stale))
		}
		for _, pd := range batch {
			if vec, ok := vectors[pd.rec.ID]; ok {
				pd.rec.Embedding = SomeEmbedding(vec)
			}
		}
	}
}

// sortDocuments orders by id and drops repeated ids, keeping the lowest text.
func sortDocuments(input []DocumentRecord) []DocumentRecord {
	docs := make([]DocumentRecord, len(input))
	copy(docs, input)
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].ID != docs[j].ID {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].Text < docs[j].Text
	})
	out := docs[:0]
	for _, doc := range docs {
		if len(out) > 0 && out[len(out)-1].ID == doc.ID {
			continue
		}
		out = append(out, doc)
	}
	return out
}

func sortRelations(rels []Relation) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].A != rels[j].A {
			return rels[i].A < rels[j].A
		}
		return rels[i].B < rels[j].B
	})
}
