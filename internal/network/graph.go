// Package network derives a routing graph from the active lines and answers
// shortest-path queries over it. The graph is never stored: rebuild it
// whenever the lines change.
package network

import (
	"container/heap"
	"math"

	"transit-sim/internal/geo"
	"transit-sim/internal/transit"
)

// Edge is a directed hop between two consecutive stops of a line. Cost is the
// geographic distance in meters.
type Edge struct {
	To   transit.StopID
	Line transit.LineID
	Cost float64
}

// Graph maps a stop to its outgoing edges.
type Graph map[transit.StopID][]Edge

// Build adds, for every placed stop and every active line through it, an edge
// to each stop the line's bus can travel to next: both neighbours of an
// interior stop, the inward neighbour of a terminus, and the following stop
// on a looping line.
func Build(stops []*transit.Stop, lines []*transit.Line) Graph {
	g := make(Graph, len(stops))
	for _, s := range stops {
		for _, l := range lines {
			if !l.Active() {
				continue
			}
			seq := l.Stops()
			i := l.IndexOf(s.ID)
			if i < 0 || len(seq) < 2 {
				continue
			}
			for _, n := range neighbours(i, len(seq), l.Loop) {
				to := seq[n]
				g[s.ID] = append(g[s.ID], Edge{
					To:   to.ID,
					Line: l.ID,
					Cost: geo.Distance(s.Position, to.Position),
				})
			}
		}
	}
	return g
}

func neighbours(i, n int, loop bool) []int {
	if loop {
		return []int{(i + 1) % n}
	}
	var out []int
	if i > 0 {
		out = append(out, i-1)
	}
	if i < n-1 {
		out = append(out, i+1)
	}
	return out
}

// Path is a route through the graph. Lines[k] is the line ridden from
// Stops[k] to Stops[k+1].
type Path struct {
	Stops []transit.StopID
	Lines []transit.LineID
	Cost  float64
}

// Transfers counts how often the route changes line.
func (p Path) Transfers() int {
	n := 0
	for i := 1; i < len(p.Lines); i++ {
		if p.Lines[i] != p.Lines[i-1] {
			n++
		}
	}
	return n
}

type hop struct {
	from transit.StopID
	line transit.LineID
}

// ShortestPath runs Dijkstra from start and stops as soon as end is settled.
// It returns false when end is unreachable. A query with start == end yields
// the one-stop path.
func ShortestPath(g Graph, start, end transit.StopID) (Path, bool) {
	dist := map[transit.StopID]float64{start: 0}
	prev := map[transit.StopID]hop{}
	settled := map[transit.StopID]bool{}

	pq := &frontier{}
	heap.Push(pq, &item{stop: start, dist: 0})
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*item)
		if settled[cur.stop] {
			continue
		}
		settled[cur.stop] = true
		if cur.stop == end {
			break
		}
		for _, e := range g[cur.stop] {
			if settled[e.To] || e.Cost < 0 {
				continue
			}
			nd := cur.dist + e.Cost
			if d, ok := dist[e.To]; ok && d <= nd {
				continue
			}
			dist[e.To] = nd
			prev[e.To] = hop{from: cur.stop, line: e.Line}
			heap.Push(pq, &item{stop: e.To, dist: nd})
		}
	}
	if !settled[end] {
		return Path{}, false
	}

	var stops []transit.StopID
	var lines []transit.LineID
	for at := end; at != start; {
		h := prev[at]
		stops = append(stops, at)
		lines = append(lines, h.line)
		at = h.from
	}
	stops = append(stops, start)
	reverse(stops)
	reverse(lines)
	return Path{Stops: stops, Lines: lines, Cost: dist[end]}, true
}

// Distance is a convenience returning only the cost, +Inf when unreachable.
func Distance(g Graph, start, end transit.StopID) float64 {
	p, ok := ShortestPath(g, start, end)
	if !ok {
		return math.Inf(1)
	}
	return p.Cost
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

type item struct {
	stop transit.StopID
	dist float64
}

// frontier is a min-heap of unsettled stops keyed by tentative distance.
type frontier []*item

func (f frontier) Len() int            { return len(f) }
func (f frontier) Less(i, j int) bool  { return f[i].dist < f[j].dist }
func (f frontier) Swap(i, j int)       { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)         { *f = append(*f, x.(*item)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return it
}
