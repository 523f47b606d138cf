package ai

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupMember struct {
	EmbedderEntry
	// disabled is set once the entry reports ErrUnavailable; missing credentials do not heal.
	disabled atomic.Bool
}

// groupEmbedder is a fallback chain. ModelName joins every entry name, so
// cached vectors are invalidated whenever the chain changes.
type groupEmbedder struct {
	members []*groupMember
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	members := make([]*groupMember, 0, len(items))
	for _, item := range items {
		members = append(members, &groupMember{EmbedderEntry: item})
	}
	return &groupEmbedder{members: members}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var errs []error
	for i, m := range g.members {
		if m.Embedder == nil || m.disabled.Load() {
			continue
		}
		vec, err := m.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrUnavailable) && m.disabled.CompareAndSwap(false, true) {
			logutil.GetLogger(ctx).Warn("embedder unavailable, disabled", zap.String("name", m.Name))
		}
		errs = append(errs, err)
		logutil.GetLogger(ctx).Warn("embedder failed, try next",
			zap.Int("index", i), zap.String("name", m.Name), zap.Error(err))
	}
	if len(errs) == 0 {
		return nil, ErrUnavailable
	}
	return nil, errors.Join(errs...)
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.members))
	for _, m := range g.members {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return strings.Join(names, "|")
}
