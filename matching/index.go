package matching

import (
	"fmt"

	"github.com/paulmach/orb"

	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/road"
)

// nearestSearcher is implemented by geom.BallTree and geom.RTree.
type nearestSearcher interface {
	Nearest(q orb.Point, k int) []geom.Neighbor
}

// Candidate represents a road segment retrieved for a GPS point
type Candidate struct {
	SegmentID int
	Segment   road.Segment
	Distance  float64 // meters from the query to the segment start
}

// Index answers nearest-segment queries. Segments are keyed by their start
// coordinate only; end point and road type ride along as payload.
// An Index is read-only after construction and safe for concurrent use.
type Index struct {
	segments []road.Segment
	tree     nearestSearcher
	kind     string
}

// BuildIndex builds the default ball tree index over segments.
func BuildIndex(segments []road.Segment) (*Index, error) {
	return NewIndex(segments, DefaultConfig())
}

// NewIndex builds the index backend selected by cfg.Index.
func NewIndex(segments []road.Segment, cfg Config) (*Index, error) {
	if len(segments) == 0 {
		return nil, ErrEmptyInput
	}
	if err := road.ValidateSegments(segments); err != nil {
		return nil, err
	}

	idx := &Index{
		segments: make([]road.Segment, len(segments)),
		kind:     cfg.Index,
	}
	copy(idx.segments, segments)

	starts := make([]orb.Point, len(segments))
	for i, s := range idx.segments {
		starts[i] = s.Start()
	}

	switch cfg.Index {
	case IndexBallTree, "":
		idx.kind = IndexBallTree
		idx.tree = geom.NewBallTree(starts, cfg.LeafSize)
	case IndexRTree:
		idx.tree = geom.NewRTreeFromPoints(starts)
	default:
		return nil, fmt.Errorf("unknown index %q", cfg.Index)
	}
	return idx, nil
}

// Query returns up to k candidates nearest-first. k larger than the number of
// segments returns every segment.
func (idx *Index) Query(p orb.Point, k int) []Candidate {
	neighbors := idx.tree.Nearest(p, k)
	candidates := make([]Candidate, len(neighbors))
	for i, n := range neighbors {
		candidates[i] = Candidate{
			SegmentID: n.ID,
			Segment:   idx.segments[n.ID],
			Distance:  n.Distance,
		}
	}
	return candidates
}

// Len returns the number of indexed segments.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.segments)
}

// Segment returns the segment at position id.
func (idx *Index) Segment(id int) road.Segment {
	return idx.segments[id]
}

// Kind names the backend, balltree or rtree.
func (idx *Index) Kind() string {
	return idx.kind
}
