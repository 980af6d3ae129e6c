package merge

import "sort"

type pair struct {
	geo  int
	attr int
	cost float64
}

// assign pairs two same-named groups greedily by ascending cost, where cost
// is the squared distance discounted by bonus when the secondary signatures
// match. Every feature is used at most once.
//
// Greedy selection is not guaranteed to be globally optimal for groups of
// three or more; duplicate groups are small in practice.
func assign(geo, attr []entry, bonus float64) []pair {
	pairs := make([]pair, 0, len(geo)*len(attr))
	for i, g := range geo {
		for j, a := range attr {
			dx := g.point[0] - a.point[0]
			dy := g.point[1] - a.point[1]
			cost := dx*dx + dy*dy
			if g.signature != "" && g.signature == a.signature {
				cost *= bonus
			}
			pairs = append(pairs, pair{geo: i, attr: j, cost: cost})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].cost < pairs[j].cost
	})

	want := min(len(geo), len(attr))
	usedGeo := make([]bool, len(geo))
	usedAttr := make([]bool, len(attr))
	out := make([]pair, 0, want)

	for _, p := range pairs {
		if len(out) == want {
			break
		}
		if usedGeo[p.geo] || usedAttr[p.attr] {
			continue
		}
		usedGeo[p.geo] = true
		usedAttr[p.attr] = true
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].geo < out[j].geo })

	return out
}
