package solver

import "github.com/rs/zerolog"

// log is the package-level logger, silent by default. Grounded on
// christopherWilliams98-risk-agent's direct use of github.com/rs/zerolog
// for engine/search diagnostics (engine/local.go, searcher/mcts.go); the
// teacher itself has no logging story to adapt.
var log zerolog.Logger = zerolog.Nop()

// SetLogger replaces the package-level logger. The Solver never logs fatal
// ErrorKinds (those are always returned), only the non-fatal ones
// (EmptyBelief, ChangeUnapplicable) and search diagnostics.
func SetLogger(l zerolog.Logger) {
	log = l
}
