package choosers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abt-go/abt/pkg/solver"
)

const uniformTag = "uniform"

// uniformChooser proposes vectors drawn uniformly from [Low, High] in
// every dimension, up to a fixed proposal budget, then reports done
// (spec.md §4.3 "propose a construction vector, or return done").
type uniformChooser struct {
	Low, High []float64
	Max       int
	made      int
}

// NewUniformChooser constructs a chooser bounded to [low, high] per
// dimension, proposing at most maxProposals vectors per mapping.
func NewUniformChooser(low, high []float64, maxProposals int) solver.Chooser {
	return &uniformChooser{Low: low, High: high, Max: maxProposals}
}

func newUniformChooser(kv [][2]string) (solver.Chooser, error) {
	c := &uniformChooser{}
	if err := c.RestoreState(kv); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *uniformChooser) Tag() string { return uniformTag }

func (c *uniformChooser) Propose(_ []solver.ChooserEntryStats, rng solver.RandSource) ([]float64, bool) {
	if c.Max > 0 && c.made >= c.Max {
		return nil, false
	}
	vector := make([]float64, len(c.Low))
	for i := range vector {
		vector[i] = c.Low[i] + rng.Float64()*(c.High[i]-c.Low[i])
	}
	c.made++
	return vector, true
}

func (c *uniformChooser) SerializeState() [][2]string {
	return [][2]string{
		{"low", floatsToCSV(c.Low)},
		{"high", floatsToCSV(c.High)},
		{"max", strconv.Itoa(c.Max)},
		{"made", strconv.Itoa(c.made)},
	}
}

func (c *uniformChooser) RestoreState(kv [][2]string) error {
	for _, pair := range kv {
		var err error
		switch pair[0] {
		case "low":
			c.Low, err = csvToFloats(pair[1])
		case "high":
			c.High, err = csvToFloats(pair[1])
		case "max":
			c.Max, err = strconv.Atoi(pair[1])
		case "made":
			c.made, err = strconv.Atoi(pair[1])
		default:
			err = fmt.Errorf("uniformChooser: unknown state key %q", pair[0])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func floatsToCSV(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func csvToFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
