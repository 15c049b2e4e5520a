package neighbors

import (
	"math"
	"sort"
	"testing"
)

// 生成确定性的伪随机点集，避免测试间波动。
func testPoints(n, dim int) [][]float64 {
	points := make([][]float64, n)
	seed := uint64(42)
	next := func() float64 {
		seed = seed*6364136223846793005 + 1442695040888963407
		return float64(seed>>33) / float64(1<<31)
	}
	for i := range points {
		p := make([]float64, dim)
		for d := range p {
			p[d] = next() * 10
		}
		points[i] = p
	}
	return points
}

func bruteForce(points [][]float64, query []float64, k int) []Neighbor {
	all := make([]Neighbor, len(points))
	for i, p := range points {
		var sum float64
		for d := range p {
			diff := p[d] - query[d]
			sum += diff * diff
		}
		all[i] = Neighbor{Index: i, Distance: math.Sqrt(sum)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance == all[j].Distance {
			return all[i].Index < all[j].Index
		}
		return all[i].Distance < all[j].Distance
	})
	if k > len(all) {
		k = len(all)
	}
	return all[:k]
}

func TestNearestMatchesBruteForce(t *testing.T) {
	t.Parallel()

	points := testPoints(200, 8)
	tree := Build(points, 8)

	queries := testPoints(10, 8)
	for _, q := range queries {
		want := bruteForce(points, q, 20)
		got := tree.Nearest(q, 20)
		if len(got) != len(want) {
			t.Fatalf("expected %d neighbors, got %d", len(want), len(got))
		}
		for i := range want {
			if math.Abs(got[i].Distance-want[i].Distance) > 1e-9 {
				t.Fatalf("neighbor %d distance mismatch: got %v want %v", i, got[i].Distance, want[i].Distance)
			}
		}
	}
}

func TestNearestOrderedAscending(t *testing.T) {
	t.Parallel()

	points := testPoints(100, 4)
	tree := Build(points, DefaultLeafSize)

	got := tree.Nearest(points[0], 15)
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Fatalf("distances not ascending at %d: %v", i, got)
		}
	}
	if got[0].Index != 0 || got[0].Distance != 0 {
		t.Fatalf("expected exact match first, got %+v", got[0])
	}
}

func TestNearestKLargerThanCorpus(t *testing.T) {
	t.Parallel()

	points := testPoints(5, 3)
	tree := Build(points, 2)

	got := tree.Nearest(points[1], 50)
	if len(got) != 5 {
		t.Fatalf("expected all 5 points, got %d", len(got))
	}
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()

	tree := Build(nil, 0)
	if got := tree.Nearest([]float64{1, 2}, 3); got != nil {
		t.Fatalf("expected nil result from empty tree, got %v", got)
	}
	if tree.Len() != 0 {
		t.Fatalf("expected empty tree, got %d", tree.Len())
	}
}
