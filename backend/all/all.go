// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quiver Contributors

// Package all registers every bundled backend. Import it for its side
// effects when the full engine set should be available:
//
//	import _ "github.com/quiverdb/quiver/backend/all"
//
// Programs that want a smaller binary can instead blank-import only the
// backend packages they use.
package all

import (
	_ "github.com/quiverdb/quiver/backend/basic"
	_ "github.com/quiverdb/quiver/backend/faiss"
	_ "github.com/quiverdb/quiver/backend/usearch"
	_ "github.com/quiverdb/quiver/backend/vecgo"
)
