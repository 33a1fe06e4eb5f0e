// Package filesystem embeds the schema migrations of the history store, one
// directory per dialect (sqlite, mysql, postgres).
package filesystem

import (
	"embed"
	"io/fs"

	"go.uber.org/fx"
)

//go:embed resource
var resources embed.FS

// Tag names the history store schema in the fx graph.
const Tag = `name:"frameworkMigrationsFS"`

// Schema returns the history store migrations rooted at the dialect directories.
func Schema() fs.FS {
	sub, err := fs.Sub(resources, "resource")
	if err != nil {
		// "resource" is embedded above; Sub only fails on an invalid name.
		panic(err)
	}
	return sub
}

// Module provides Schema under Tag.
var Module = fx.Provide(fx.Annotate(Schema, fx.ResultTags(Tag)))
