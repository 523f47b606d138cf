package dedup

import (
	"sort"
)

// unionFind is a disjoint-set forest with path halving and union by size.
type unionFind struct {
	parent map[string]string
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		size:   make(map[string]int),
	}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.size[x] = 1
		return x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

func (u *unionFind) components() map[string][]string {
	out := make(map[string][]string)
	for x := range u.parent {
		root := u.find(x)
		out[root] = append(out[root], x)
	}
	return out
}

// GroupRelations computes connected components over relations regardless of tier.
// records supplies the canonical-selection inputs; ids without a record fall back
// to the id tie-break. Output is sorted and independent of relation order.
func GroupRelations(relations []Relation, records map[string]DocumentRecord) []Group {
	if len(relations) == 0 {
		return nil
	}
	uf := newUnionFind()
	for _, rel := range relations {
		uf.union(rel.A, rel.B)
	}
	tiers := make(map[string]map[Tier]struct{})
	for _, rel := range relations {
		root := uf.find(rel.A)
		if tiers[root] == nil {
			tiers[root] = make(map[Tier]struct{})
		}
		tiers[root][rel.Tier] = struct{}{}
	}

	groups := make([]Group, 0)
	for root, members := range uf.components() {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		groups = append(groups, Group{
			CanonicalID: selectCanonical(members, records),
			MemberIDs:   members,
			Tiers:       sortedTiers(tiers[root]),
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].MemberIDs[0] < groups[j].MemberIDs[0]
	})
	return groups
}

// selectCanonical picks the representative: highest quality score, then earliest
// creation time, then lowest id.
func selectCanonical(ids []string, records map[string]DocumentRecord) string {
	best := ids[0]
	for _, id := range ids[1:] {
		if preferCanonical(records[id], id, records[best], best) {
			best = id
		}
	}
	return best
}

func preferCanonical(a DocumentRecord, aID string, b DocumentRecord, bID string) bool {
	switch {
	case a.QualityScore != nil && b.QualityScore != nil:
		if *a.QualityScore != *b.QualityScore {
			return *a.QualityScore > *b.QualityScore
		}
	case a.QualityScore != nil:
		return true
	case b.QualityScore != nil:
		return false
	}
	switch {
	case !a.CreatedAt.IsZero() && !b.CreatedAt.IsZero():
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	case !a.CreatedAt.IsZero():
		return true
	case !b.CreatedAt.IsZero():
		return false
	}
	return aID < bID
}

func sortedTiers(set map[Tier]struct{}) []Tier {
	out := make([]Tier, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].rank() < out[j].rank()
	})
	return out
}

// RemoveDuplicates turns groups into a removal plan: canonical ids are kept,
// every other member is listed for removal. Nothing is deleted here.
func RemoveDuplicates(groups []Group) RemovalPlan {
	plan := RemovalPlan{
		Kept:    make([]string, 0, len(groups)),
		Removed: make([]RemovalItem, 0),
	}
	for _, g := range groups {
		plan.Kept = append(plan.Kept, g.CanonicalID)
		for _, id := range g.MemberIDs {
			if id == g.CanonicalID {
				continue
			}
			plan.Removed = append(plan.Removed, RemovalItem{
				DocumentID:  id,
				CanonicalID: g.CanonicalID,
				Tiers:       g.Tiers,
			})
		}
	}
	sort.Strings(plan.Kept)
	sort.Slice(plan.Removed, func(i, j int) bool {
		return plan.Removed[i].DocumentID < plan.Removed[j].DocumentID
	})
	return plan
}

// summarize fills the count fields from groups.
func summarize(res *BatchResult) {
	for _, g := range res.Groups {
		res.Duplicates += len(g.MemberIDs) - 1
		for _, id := range g.MemberIDs {
			if res.States != nil {
				res.States[id] = StateGrouped
			}
		}
	}
	res.Unique = res.Total - res.Duplicates
	if res.States != nil {
		for id, st := range res.States {
			if st != StateGrouped {
				res.States[id] = StateUnique
			}
		}
	}
}
