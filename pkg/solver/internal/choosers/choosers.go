// Package choosers is the registry of continuous-action choosers
// (spec.md §4.3, §9 "Chooser state"). It is internal because the registry
// is a plugin point for the Core itself, not a public extension surface:
// New rebuilds a chooser from its tag and serialized state. pkg/solver does
// not call the registry; a ContinuousActionMapping gets its chooser from
// ContinuousActionPool.NewChooser.
package choosers

import (
	"fmt"

	"github.com/abt-go/abt/pkg/solver"
)

// Constructor builds a fresh Chooser, optionally restoring state
// previously produced by Chooser.SerializeState.
type Constructor func(kv [][2]string) (solver.Chooser, error)

var registry = map[string]Constructor{}

// Register adds a chooser constructor under tag. The package's init()
// below registers the uniform and gaussian choosers, so the registry is
// populated just by importing the package; re-registering the same tag
// overwrites silently.
func Register(tag string, ctor Constructor) {
	registry[tag] = ctor
}

// New looks up tag and constructs a fresh Chooser from kv (empty kv for a
// brand-new chooser, non-empty when restoring from a serialized tree).
func New(tag string, kv [][2]string) (solver.Chooser, error) {
	ctor, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("choosers: unregistered tag %q", tag)
	}
	return ctor(kv)
}

func init() {
	Register(uniformTag, newUniformChooser)
	Register(gaussianTag, newGaussianChooser)
}
