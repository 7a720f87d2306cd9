package geom

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// DefaultLeafSize is the number of points kept in a ball tree leaf.
const DefaultLeafSize = 16

// pruneSlack absorbs floating point error in the triangle inequality bound.
const pruneSlack = 1e-6

// Neighbor is one k-nearest-neighbor result: the position of the point in the
// slice the index was built from and its great-circle distance in meters.
type Neighbor struct {
	ID       int
	Distance float64
}

type ballNode struct {
	center      orb.Point
	radius      float64
	start, end  int
	left, right *ballNode
}

// BallTree is a metric tree over lon/lat points. Every node holds a ball (center,
// radius in meters) enclosing its points, so the haversine triangle inequality
// bounds the distance from a query to anything inside the ball.
// A built tree is never mutated and is safe for concurrent queries.
type BallTree struct {
	points   []orb.Point
	ids      []int
	root     *ballNode
	leafSize int
}

// NewBallTree builds a tree over points. IDs in query results are indexes into points.
func NewBallTree(points []orb.Point, leafSize int) *BallTree {
	if leafSize <= 0 {
		leafSize = DefaultLeafSize
	}
	t := &BallTree{
		points:   make([]orb.Point, len(points)),
		ids:      make([]int, len(points)),
		leafSize: leafSize,
	}
	copy(t.points, points)
	for i := range t.ids {
		t.ids[i] = i
	}
	if len(points) > 0 {
		t.root = t.build(0, len(points))
	}
	return t
}

// Len returns the number of indexed points.
func (t *BallTree) Len() int {
	return len(t.points)
}

func (t *BallTree) build(start, end int) *ballNode {
	ids := t.ids[start:end]

	var sumLon, sumLat float64
	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	for _, id := range ids {
		p := t.points[id]
		sumLon += p[0]
		sumLat += p[1]
		minLon, maxLon = math.Min(minLon, p[0]), math.Max(maxLon, p[0])
		minLat, maxLat = math.Min(minLat, p[1]), math.Max(maxLat, p[1])
	}
	n := float64(len(ids))
	node := &ballNode{
		center: orb.Point{sumLon / n, sumLat / n},
		start:  start,
		end:    end,
	}
	for _, id := range ids {
		node.radius = math.Max(node.radius, GeodesicDistance(node.center, t.points[id]))
	}

	if len(ids) <= t.leafSize {
		return node
	}

	// split on the axis with the larger spread, at the median
	axis := 1
	if maxLon-minLon > maxLat-minLat {
		axis = 0
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := t.points[ids[i]][axis], t.points[ids[j]][axis]
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	mid := start + len(ids)/2
	node.left = t.build(start, mid)
	node.right = t.build(mid, end)
	return node
}

// Nearest returns the k points closest to q, nearest first. Equal distances are
// ordered by ID. k is clamped to the number of points.
func (t *BallTree) Nearest(q orb.Point, k int) []Neighbor {
	if k > len(t.points) {
		k = len(t.points)
	}
	if k <= 0 || t.root == nil {
		return nil
	}
	set := newNeighborSet(k)
	t.search(t.root, q, set)
	return set.items
}

func (t *BallTree) search(node *ballNode, q orb.Point, set *neighborSet) {
	if lowerBound(node, q) > set.worst() {
		return
	}
	if node.left == nil {
		for _, id := range t.ids[node.start:node.end] {
			set.offer(id, GeodesicDistance(q, t.points[id]))
		}
		return
	}
	first, second := node.left, node.right
	if lowerBound(second, q) < lowerBound(first, q) {
		first, second = second, first
	}
	t.search(first, q, set)
	t.search(second, q, set)
}

func lowerBound(node *ballNode, q orb.Point) float64 {
	return math.Max(0, GeodesicDistance(q, node.center)-node.radius-pruneSlack)
}

// neighborSet keeps the best k neighbors sorted by (distance, id).
type neighborSet struct {
	k     int
	items []Neighbor
}

func newNeighborSet(k int) *neighborSet {
	return &neighborSet{k: k, items: make([]Neighbor, 0, k)}
}

func (s *neighborSet) worst() float64 {
	if len(s.items) < s.k {
		return math.Inf(1)
	}
	return s.items[len(s.items)-1].Distance
}

func (s *neighborSet) offer(id int, d float64) {
	n := Neighbor{ID: id, Distance: d}
	if len(s.items) == s.k && !less(n, s.items[len(s.items)-1]) {
		return
	}
	i := sort.Search(len(s.items), func(i int) bool { return less(n, s.items[i]) })
	if len(s.items) < s.k {
		s.items = append(s.items, Neighbor{})
	}
	copy(s.items[i+1:], s.items[i:len(s.items)-1])
	s.items[i] = n
}

func less(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}
