package geom

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// initialSearchMeters is the first radius tried by RTree.Nearest.
const initialSearchMeters = 250.0

// RTreeItem represents a point stored in the RTree
type RTreeItem struct {
	ID    int
	Point orb.Point
}

// RTree wraps tidwall/rtree for spatial indexing of points
type RTree struct {
	tree *rtree.RTreeG[RTreeItem]
}

// NewRTree creates a new RTree
func NewRTree() *RTree {
	return &RTree{
		tree: &rtree.RTreeG[RTreeItem]{},
	}
}

// NewRTreeFromPoints creates an RTree holding points, keyed by their slice position.
func NewRTreeFromPoints(points []orb.Point) *RTree {
	r := NewRTree()
	for i, p := range points {
		r.Insert(i, p)
	}
	return r
}

// Insert adds a point to the RTree
func (r *RTree) Insert(id int, p orb.Point) {
	r.tree.Insert(
		[2]float64{p[0], p[1]},
		[2]float64{p[0], p[1]},
		RTreeItem{ID: id, Point: p},
	)
}

// Search returns all items inside the query bbox
func (r *RTree) Search(minLon, minLat, maxLon, maxLat float64) []RTreeItem {
	result := make([]RTreeItem, 0)
	r.tree.Search(
		[2]float64{minLon, minLat},
		[2]float64{maxLon, maxLat},
		func(min, max [2]float64, item RTreeItem) bool {
			result = append(result, item)
			return true // continue searching
		},
	)
	return result
}

// SearchNearPoint returns all items whose bounding box may lie within distanceMeters of p.
// Callers filter on exact distance.
func (r *RTree) SearchNearPoint(p orb.Point, distanceMeters float64) []RTreeItem {
	min, max := boundAround(p, distanceMeters)
	return r.Search(min[0], min[1], max[0], max[1])
}

// Nearest returns the k items closest to p by great-circle distance, nearest
// first with ties ordered by ID. The search box grows until it holds k items,
// then is re-run with the k-th distance so no closer item outside the first box
// is missed.
func (r *RTree) Nearest(p orb.Point, k int) []Neighbor {
	if k > r.Size() {
		k = r.Size()
	}
	if k <= 0 {
		return nil
	}

	radius := initialSearchMeters
	maxRadius := math.Pi * EarthRadiusMeters
	items := r.SearchNearPoint(p, radius)
	for len(items) < k && radius < maxRadius {
		radius *= 4
		items = r.SearchNearPoint(p, radius)
	}

	neighbors := rankByDistance(p, items)
	kth := neighbors[k-1].Distance
	neighbors = rankByDistance(p, r.SearchNearPoint(p, kth*(1+1e-9)+pruneSlack))
	return neighbors[:k]
}

// Size returns the number of items in the RTree
func (r *RTree) Size() int {
	return r.tree.Len()
}

func rankByDistance(p orb.Point, items []RTreeItem) []Neighbor {
	neighbors := make([]Neighbor, len(items))
	for i, item := range items {
		neighbors[i] = Neighbor{ID: item.ID, Distance: GeodesicDistance(p, item.Point)}
	}
	sort.Slice(neighbors, func(i, j int) bool { return less(neighbors[i], neighbors[j]) })
	return neighbors
}
