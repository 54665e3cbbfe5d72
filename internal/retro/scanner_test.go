package retro

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultThresholds(t *testing.T) {
	defaults := DefaultThresholds()
	assert.Equal(t, 0.05, defaults.Mistake)
	assert.Equal(t, 0.15, defaults.Blunder)
}

func TestScanFindsFaultsInOrder(t *testing.T) {
	f := newFixture()

	faults, err := NewScanner(DefaultThresholds(), f.tree).Scan(White, f.tree.Mainline())
	require.NoError(t, err)
	require.Len(t, faults, 2)

	assert.Equal(t, f.ply2, faults[0].Node)
	assert.Equal(t, f.ply1, faults[0].Prev)
	assert.Equal(t, CategoryBlunder, faults[0].Category)
	assert.InDelta(t, 0.2, faults[0].Loss, 1e-9)

	assert.Equal(t, f.ply4, faults[1].Node)
	assert.Equal(t, f.ply3, faults[1].Prev)
	assert.Equal(t, CategoryMistake, faults[1].Category)
	assert.InDelta(t, 0.1, faults[1].Loss, 1e-9)

	for _, fault := range faults {
		assert.Equal(t, White, fault.Color)
	}
}

func TestScanNoFaults(t *testing.T) {
	f := newFixture()

	faults, err := NewScanner(DefaultThresholds(), f.tree).Scan(Black, f.tree.Mainline())
	require.NoError(t, err)
	assert.Empty(t, faults)
}

func TestScanThresholdIsExclusive(t *testing.T) {
	tree := newFakeTree(&Eval{Depth: 20, Score: 0.5, BestLine: []string{"D4"}})
	tree.add("", "aa", "C3", Black, &Eval{Depth: 20, Score: 0.45}, true)
	tree.add("", "ab", "D4", Black, &Eval{Depth: 20, Score: 0.5}, false)

	faults, err := NewScanner(Thresholds{Mistake: 0.05, Blunder: 0.15}, tree).Scan(Black, tree.Mainline())
	require.NoError(t, err)
	assert.Empty(t, faults, "a loss equal to the threshold is not a fault")

	faults, err = NewScanner(Thresholds{Mistake: 0.04, Blunder: 0.15}, tree).Scan(Black, tree.Mainline())
	require.NoError(t, err)
	assert.Len(t, faults, 1)
}

func TestScanIgnoresBestMove(t *testing.T) {
	tree := newFakeTree(&Eval{Depth: 20, Score: 0.5, BestLine: []string{"D4"}})
	tree.add("", "aa", "D4", Black, &Eval{Depth: 20, Score: 0.4}, true)

	faults, err := NewScanner(DefaultThresholds(), tree).Scan(Black, tree.Mainline())
	require.NoError(t, err)
	assert.Empty(t, faults)
}

func TestScanIncompleteAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *fakeTree
		wantPath Path
	}{
		{
			name: "missing evaluation",
			build: func() *fakeTree {
				tree := newFakeTree(&Eval{Depth: 20, Score: 0.5, BestLine: []string{"D4"}})
				tree.add("", "aa", "D4", Black, &Eval{Depth: 20, Score: 0.5}, true)
				tree.add("aa", "bb", "Q16", White, nil, true)
				return tree
			},
			wantPath: "aabb",
		},
		{
			name: "missing best line",
			build: func() *fakeTree {
				tree := newFakeTree(&Eval{Depth: 20, Score: 0.5})
				tree.add("", "aa", "C3", Black, &Eval{Depth: 20, Score: 0.2}, true)
				return tree
			},
			wantPath: "",
		},
		{
			name: "solution not in tree",
			build: func() *fakeTree {
				tree := newFakeTree(&Eval{Depth: 20, Score: 0.5, BestLine: []string{"D4"}})
				tree.add("", "aa", "C3", Black, &Eval{Depth: 20, Score: 0.2}, true)
				return tree
			},
			wantPath: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := tt.build()
			faults, err := NewScanner(DefaultThresholds(), tree).Scan(Black, tree.Mainline())
			require.Error(t, err)
			assert.Nil(t, faults)
			assert.True(t, errors.Is(err, ErrIncompleteAnalysis))

			var incomplete *IncompleteAnalysisError
			require.True(t, errors.As(err, &incomplete))
			assert.Equal(t, tt.wantPath, incomplete.Path)
		})
	}
}

func TestScanWithoutTreeSkipsSolutionCheck(t *testing.T) {
	tree := newFakeTree(&Eval{Depth: 20, Score: 0.5, BestLine: []string{"D4"}})
	tree.add("", "aa", "C3", Black, &Eval{Depth: 20, Score: 0.2}, true)

	faults, err := NewScanner(DefaultThresholds(), nil).Scan(Black, tree.Mainline())
	require.NoError(t, err)
	assert.Len(t, faults, 1)
}

func TestFindSolution(t *testing.T) {
	f := newFixture()

	sol, ok := FindSolution(f.tree, f.ply1)
	require.True(t, ok)
	assert.Equal(t, f.sol1, sol.Node)

	_, ok = FindSolution(f.tree, f.ply4)
	assert.False(t, ok)
}
