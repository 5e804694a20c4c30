// Package all wires the built-in feature store providers into the store
// registry. Import it for side effects:
//
//	import _ "farmland/internal/store/all"
package all

import (
	_ "farmland/internal/store/sqlite"
)
