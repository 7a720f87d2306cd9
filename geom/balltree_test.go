package geom

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomPoints(rng *rand.Rand, n int, center orb.Point, spreadDeg float64) []orb.Point {
	points := make([]orb.Point, n)
	for i := range points {
		points[i] = orb.Point{
			center.Lon() + (rng.Float64()-0.5)*spreadDeg,
			center.Lat() + (rng.Float64()-0.5)*spreadDeg,
		}
	}
	return points
}

func bruteForceNearest(points []orb.Point, q orb.Point, k int) []Neighbor {
	all := make([]Neighbor, len(points))
	for i, p := range points {
		all[i] = Neighbor{ID: i, Distance: GeodesicDistance(q, p)}
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

func TestBallTreeMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	points := randomPoints(rng, 500, orb.Point{110.37, -7.78}, 0.2)
	tree := NewBallTree(points, 8)
	require.Equal(t, len(points), tree.Len())

	for i := 0; i < 50; i++ {
		q := randomPoints(rng, 1, orb.Point{110.37, -7.78}, 0.3)[0]
		for _, k := range []int{1, 5, 17} {
			got := tree.Nearest(q, k)
			want := bruteForceNearest(points, q, k)
			require.Len(t, got, k)
			for j := range want {
				assert.Equal(t, want[j].ID, got[j].ID)
				assert.InDelta(t, want[j].Distance, got[j].Distance, 1e-9)
			}
		}
	}
}

func TestBallTreeClampsK(t *testing.T) {
	points := []orb.Point{{0, 0}, {1, 0}, {0.001, 0}}
	tree := NewBallTree(points, 0)

	got := tree.Nearest(orb.Point{0, 0}, 10)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 2, 1}, []int{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 0.0, got[0].Distance)
}

func TestBallTreeTiesOrderedByID(t *testing.T) {
	points := []orb.Point{{0, 0.001}, {0, -0.001}, {0.001, 0}, {0, 0.001}}
	tree := NewBallTree(points, 1)

	got := tree.Nearest(orb.Point{0, 0}, 4)
	require.Len(t, got, 4)
	assert.Equal(t, 0, got[0].ID)
	assert.Equal(t, 3, got[len(got)-1].ID)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

func TestBallTreeEmpty(t *testing.T) {
	tree := NewBallTree(nil, DefaultLeafSize)
	assert.Equal(t, 0, tree.Len())
	assert.Nil(t, tree.Nearest(orb.Point{0, 0}, 5))
}

func TestBallTreeDoesNotAliasInput(t *testing.T) {
	points := []orb.Point{{0, 0}, {1, 1}}
	tree := NewBallTree(points, DefaultLeafSize)
	points[0] = orb.Point{50, 50}

	got := tree.Nearest(orb.Point{0, 0}, 1)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].ID)
	assert.Equal(t, 0.0, got[0].Distance)
}
