package choosers

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abt-go/abt/pkg/solver"
)

// mathRandSource adapts *rand.Rand to solver.RandSource, the same seam the
// Solver's own BeliefTree uses (tree.go's randSource), so these tests draw
// from a real, seeded generator rather than a hand-rolled fake.
type mathRandSource struct{ r *rand.Rand }

func (s mathRandSource) Float64() float64 { return s.r.Float64() }
func (s mathRandSource) Intn(n int) int   { return s.r.Intn(n) }

func TestUniformChooserPropose(t *testing.T) {
	t.Run("draws stay within the configured box", func(t *testing.T) {
		c := NewUniformChooser([]float64{0, -1}, []float64{2, 1}, 0)
		rng := mathRandSource{rand.New(rand.NewSource(1))}
		for i := 0; i < 50; i++ {
			v, ok := c.Propose(nil, rng)
			require.True(t, ok)
			require.Len(t, v, 2)
			require.GreaterOrEqual(t, v[0], 0.0)
			require.LessOrEqual(t, v[0], 2.0)
			require.GreaterOrEqual(t, v[1], -1.0)
			require.LessOrEqual(t, v[1], 1.0)
		}
	})

	t.Run("stops once the proposal budget is exhausted", func(t *testing.T) {
		c := NewUniformChooser([]float64{0}, []float64{1}, 3)
		rng := mathRandSource{rand.New(rand.NewSource(2))}
		for i := 0; i < 3; i++ {
			_, ok := c.Propose(nil, rng)
			require.True(t, ok, "proposal %d should still be under budget", i)
		}
		_, ok := c.Propose(nil, rng)
		require.False(t, ok, "budget of 3 must stop the 4th proposal")
	})

	t.Run("zero budget means unbounded", func(t *testing.T) {
		c := NewUniformChooser([]float64{0}, []float64{1}, 0)
		rng := mathRandSource{rand.New(rand.NewSource(3))}
		for i := 0; i < 100; i++ {
			_, ok := c.Propose(nil, rng)
			require.True(t, ok)
		}
	})
}

func TestUniformChooserSerializeRestoreRoundTrip(t *testing.T) {
	c := NewUniformChooser([]float64{0, 1.5}, []float64{3, 4.5}, 10).(*uniformChooser)
	rng := mathRandSource{rand.New(rand.NewSource(4))}
	_, _ = c.Propose(nil, rng)
	_, _ = c.Propose(nil, rng)

	restored := &uniformChooser{}
	require.NoError(t, restored.RestoreState(c.SerializeState()))

	require.Equal(t, c.Low, restored.Low)
	require.Equal(t, c.High, restored.High)
	require.Equal(t, c.Max, restored.Max)
	require.Equal(t, c.made, restored.made)
	require.Equal(t, uniformTag, restored.Tag())
}

func TestUniformChooserRestoreStateRejectsUnknownKey(t *testing.T) {
	c := &uniformChooser{}
	err := c.RestoreState([][2]string{{"bogus", "1"}})
	require.Error(t, err)
}

func TestGaussianChooserPropose(t *testing.T) {
	t.Run("no entries yet counts as a made attempt but proposes nothing", func(t *testing.T) {
		c := NewGaussianChooser(1.0, 0.9, 0)
		rng := mathRandSource{rand.New(rand.NewSource(5))}
		v, ok := c.Propose(nil, rng)
		require.False(t, ok)
		require.Nil(t, v)
		require.Equal(t, 1, c.(*gaussianChooser).made)
	})

	t.Run("perturbs around the highest-meanQ visited entry", func(t *testing.T) {
		c := NewGaussianChooser(0.5, 0.9, 0)
		rng := mathRandSource{rand.New(rand.NewSource(6))}
		entries := []solver.ChooserEntryStats{
			{Vector: []float64{0, 0}, VisitCount: 1, MeanQ: 1.0},
			{Vector: []float64{10, 10}, VisitCount: 1, MeanQ: 5.0},
			{Vector: []float64{20, 20}, VisitCount: 0, MeanQ: math.Inf(1)}, // unvisited, must be ignored
		}
		v, ok := c.Propose(entries, rng)
		require.True(t, ok)
		require.Len(t, v, 2)
		// An unvisited entry's MeanQ sentinel must never win best-entry
		// selection, so the proposal must perturb around {10,10}, not {20,20}.
		require.Less(t, math.Abs(v[0]-10), 10.0)
		require.Less(t, math.Abs(v[1]-10), 10.0)
	})

	t.Run("stops once the proposal budget is exhausted", func(t *testing.T) {
		c := NewGaussianChooser(1.0, 0.9, 2)
		rng := mathRandSource{rand.New(rand.NewSource(7))}
		entries := []solver.ChooserEntryStats{{Vector: []float64{0}, VisitCount: 1, MeanQ: 0}}
		_, ok := c.Propose(entries, rng)
		require.True(t, ok)
		_, ok = c.Propose(entries, rng)
		require.True(t, ok)
		_, ok = c.Propose(entries, rng)
		require.False(t, ok, "budget of 2 must stop the 3rd proposal")
	})
}

func TestGaussianChooserSerializeRestoreRoundTrip(t *testing.T) {
	c := NewGaussianChooser(2.0, 0.8, 5).(*gaussianChooser)
	rng := mathRandSource{rand.New(rand.NewSource(8))}
	entries := []solver.ChooserEntryStats{{Vector: []float64{1}, VisitCount: 1, MeanQ: 0}}
	_, _ = c.Propose(entries, rng)

	restored := &gaussianChooser{}
	require.NoError(t, restored.RestoreState(c.SerializeState()))

	require.Equal(t, c.Sigma0, restored.Sigma0)
	require.Equal(t, c.Decay, restored.Decay)
	require.Equal(t, c.Max, restored.Max)
	require.Equal(t, c.made, restored.made)
	require.Equal(t, gaussianTag, restored.Tag())
}

func TestGaussianChooserRestoreStateRejectsUnknownKey(t *testing.T) {
	c := &gaussianChooser{}
	err := c.RestoreState([][2]string{{"bogus", "1"}})
	require.Error(t, err)
}

func TestRegistryNewLooksUpByTag(t *testing.T) {
	uc, err := New(uniformTag, [][2]string{{"low", "0"}, {"high", "1"}, {"max", "0"}, {"made", "0"}})
	require.NoError(t, err)
	require.Equal(t, uniformTag, uc.Tag())

	gc, err := New(gaussianTag, [][2]string{{"sigma0", "1"}, {"decay", "0.9"}, {"max", "0"}, {"made", "0"}})
	require.NoError(t, err)
	require.Equal(t, gaussianTag, gc.Tag())

	_, err = New("not-a-real-tag", nil)
	require.Error(t, err)
}
