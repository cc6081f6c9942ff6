// Package transforms registers all pipeline transforms.
package transforms

import (
	// Import all transform packages to register their steps
	_ "github.com/terracehq/terrace/internal/transforms/demography"
)

// All imports trigger init() functions that register transforms.
