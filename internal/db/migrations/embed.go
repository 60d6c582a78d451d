// Package migrations embeds the versioned schema for every supported driver.
// Each driver has its own directory named after config.Database.Driver.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
