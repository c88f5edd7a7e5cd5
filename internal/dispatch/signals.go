package dispatch

import "errors"

// Control-flow signals handlers return from Matches or Handle. They are not
// failures and are never logged as errors, in the manner of fs.SkipDir.
var (
	// Skip aborts the raising handler and proceeds to the next handler in
	// the same tier.
	Skip = errors.New("skip this handler")

	// Stop aborts the remainder of the dispatch for the current event: no
	// further handlers in this tier, no further tiers.
	Stop = errors.New("stop event propagation")
)
