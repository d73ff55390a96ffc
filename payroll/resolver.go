/*
Context specificity resolution.

PURPOSE:
  When several scoped contexts of the same element could apply to a
  position, exactly one must win. This file ranks candidates by how
  specifically their scope is pinned down and keeps the most specific
  active one per element.

THE RANKING (lower wins):
  1. institution + structure + group
  2. institution + group, structure unset
  3. group only
  4. institution + structure, group unset
  5. institution only
*/
package payroll

import "sort"

// contextRank returns the specificity rank of a context based on which
// scope fields it pins down.
func contextRank(cx *Context) int {
	inst := cx.InstitutionID != ""
	structure := cx.OrgStructureID != ""
	group := cx.OrgGroupID != ""

	switch {
	case inst && structure && group:
		return 1
	case inst && !structure && group:
		return 2
	case !inst && !structure && group:
		return 3
	case inst && structure && !group:
		return 4
	case inst && !structure && !group:
		return 5
	}
	return 0
}

// resolveContexts reduces a candidate list to one context per element: the
// active context with the best rank. Order of the result follows the
// first appearance of each element in the input.
func resolveContexts(candidates []*Context) []*Context {
	type winner struct {
		cx    *Context
		rank  int
		order int
	}
	best := make(map[string]*winner)
	for idx, cx := range candidates {
		if cx == nil || cx.Element == nil || !cx.Active {
			continue
		}
		rank := contextRank(cx)
		w, ok := best[cx.Element.Key]
		if !ok {
			best[cx.Element.Key] = &winner{cx: cx, rank: rank, order: idx}
			continue
		}
		if rank < w.rank {
			w.cx = cx
			w.rank = rank
		}
	}

	winners := make([]*winner, 0, len(best))
	for _, w := range best {
		winners = append(winners, w)
	}
	sort.Slice(winners, func(a, b int) bool { return winners[a].order < winners[b].order })

	out := make([]*Context, len(winners))
	for i, w := range winners {
		out[i] = w.cx
	}
	return out
}
