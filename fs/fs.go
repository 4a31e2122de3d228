// Package appfs exposes the repository's embedded assets.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
