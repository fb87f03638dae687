// Package migrations embeds the warehouse schema.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

// Files embeds the ordered SQL migrations.
//
//go:embed *.sql
var Files embed.FS

// Names returns migration file names in apply order.
func Names() ([]string, error) {
	names, err := fs.Glob(Files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
