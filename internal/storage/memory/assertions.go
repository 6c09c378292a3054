package memory

import (
	"github.com/avoscheidt/fiskal/internal/service/taxcalc"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ taxcalc.Repo   = (*Store)(nil)
	_ taxcalc.Writer = (*Store)(nil)
)
