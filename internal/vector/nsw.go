package vector

import (
	"sort"

	"github.com/makr-code/themis/internal/capability"
	"github.com/makr-code/themis/internal/core"
)

// scored pairs a node pk with its distance to some query vector.
type scored struct {
	pk   string
	dist float64
}

// maxSearchRounds bounds how many expansion rounds a beam search runs,
// guarding against pathological graphs where the frontier never empties.
const maxSearchRounds = 64

// beamSearch is the single-layer NSW greedy search: starting from the
// graph's live entry point, it repeatedly expands the current frontier's
// neighbors, keeping the ef closest of the nodes newly discovered in that
// round as the next frontier, until no new node is found or
// maxSearchRounds is hit.
// allowed, when non-nil, restricts which pks may ever be visited — used by
// search_knn_pre_filtered to confine the search to a candidate subset.
func beamSearch(g *graphState, query []float32, ef int, kernel capability.DistanceKernel, metric core.Metric, allowed map[string]bool) []scored {
	entry := g.liveEntry()
	if entry == "" {
		return nil
	}
	if allowed != nil && !allowed[entry] {
		// No live, allowed entry point to start from; fall back to brute
		// force over the allowed set rather than returning nothing.
		return bruteForceAllowed(g, query, kernel, metric, allowed)
	}

	visited := map[string]bool{entry: true}
	all := []scored{{pk: entry, dist: distance(kernel, metric, query, g.nodes[entry].vector)}}
	frontier := []string{entry}

	for round := 0; round < maxSearchRounds && len(frontier) > 0; round++ {
		var discovered []scored
		for _, pk := range frontier {
			nd, ok := g.nodes[pk]
			if !ok {
				continue
			}
			for _, nb := range nd.neighbors {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				nbNode, ok := g.nodes[nb]
				if !ok || nbNode.deleted {
					continue
				}
				if allowed != nil && !allowed[nb] {
					continue
				}
				d := scored{pk: nb, dist: distance(kernel, metric, query, nbNode.vector)}
				all = append(all, d)
				discovered = append(discovered, d)
			}
		}
		if len(discovered) == 0 {
			break
		}
		sort.Slice(discovered, func(i, j int) bool { return discovered[i].dist < discovered[j].dist })
		if len(discovered) > ef {
			discovered = discovered[:ef]
		}
		frontier = make([]string, len(discovered))
		for i, d := range discovered {
			frontier[i] = d.pk
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].pk < all[j].pk
	})
	return all
}

func bruteForceAllowed(g *graphState, query []float32, kernel capability.DistanceKernel, metric core.Metric, allowed map[string]bool) []scored {
	var out []scored
	for pk, nd := range g.nodes {
		if nd.deleted {
			continue
		}
		if allowed != nil && !allowed[pk] {
			continue
		}
		out = append(out, scored{pk: pk, dist: distance(kernel, metric, query, nd.vector)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].pk < out[j].pk
	})
	return out
}

// bruteForce scores every live node against query, ascending by distance.
func bruteForce(g *graphState, query []float32, kernel capability.DistanceKernel, metric core.Metric) []scored {
	return bruteForceAllowed(g, query, kernel, metric, nil)
}

// insertIntoGraph links a brand-new node into g's NSW graph: it finds the
// efConstruction nearest existing live nodes, keeps the nearest M as the
// new node's neighbors, and makes each of those neighbors reciprocally
// link back, pruning any neighbor's list back down to M by keeping its M
// nearest (standard NSW/HNSW neighbor-list maintenance).
func insertIntoGraph(g *graphState, n *node, kernel capability.DistanceKernel, metric core.Metric) []*node {
	if len(g.nodes) == 0 {
		g.nodes[string(n.pk)] = n
		g.entry = string(n.pk)
		return []*node{n}
	}

	ef := g.params.EfConstruction
	if ef < g.params.M {
		ef = g.params.M
	}
	candidates := beamSearch(g, n.vector, ef, kernel, metric, nil)
	m := g.params.M
	if m <= 0 {
		m = 16
	}
	if len(candidates) > m {
		candidates = candidates[:m]
	}

	touched := []*node{n}
	for _, c := range candidates {
		n.neighbors = append(n.neighbors, c.pk)
		nb := g.nodes[c.pk]
		nb.neighbors = append(nb.neighbors, string(n.pk))
		nb.neighbors = pruneNeighbors(g, nb, m, kernel, metric)
		touched = append(touched, nb)
	}

	g.nodes[string(n.pk)] = n
	return touched
}

// pruneNeighbors trims nd's neighbor list back to the m nearest (by
// distance to nd's own vector), dropping stale/deleted/self references.
func pruneNeighbors(g *graphState, nd *node, m int, kernel capability.DistanceKernel, metric core.Metric) []string {
	seen := map[string]bool{}
	var scoredNeighbors []scored
	for _, pk := range nd.neighbors {
		if pk == string(nd.pk) || seen[pk] {
			continue
		}
		seen[pk] = true
		other, ok := g.nodes[pk]
		if !ok {
			continue
		}
		scoredNeighbors = append(scoredNeighbors, scored{pk: pk, dist: distance(kernel, metric, nd.vector, other.vector)})
	}
	sort.Slice(scoredNeighbors, func(i, j int) bool { return scoredNeighbors[i].dist < scoredNeighbors[j].dist })
	if len(scoredNeighbors) > m {
		scoredNeighbors = scoredNeighbors[:m]
	}
	out := make([]string, len(scoredNeighbors))
	for i, s := range scoredNeighbors {
		out[i] = s.pk
	}
	return out
}
