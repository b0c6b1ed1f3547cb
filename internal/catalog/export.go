package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/makr-code/themis/internal/core"
)

// snapshotDoc is the TOML document shape for a full descriptor dump,
// mirroring the teacher's schema-dump workflow (internal/parser/toml's
// schemaFile) repurposed from table DDL to index descriptors.
type snapshotDoc struct {
	Indexes []core.IndexDescriptor `toml:"indexes"`
}

// Export writes every registered descriptor, across every table, to w as
// TOML, for operational backup/diffing of the catalog's shape.
func (c *Catalog) Export(w io.Writer) error {
	cur := c.current.Load()
	doc := snapshotDoc{Indexes: make([]core.IndexDescriptor, 0, len(cur.byKey))}
	for _, t := range c.Tables() {
		for _, d := range c.List(t) {
			doc.Indexes = append(doc.Indexes, d)
		}
	}
	enc := toml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("catalog: encode export: %w", err)
	}
	return nil
}

// Import registers every descriptor found in r's TOML document, skipping
// (not erroring on) any descriptor that already exists, so Import is safe
// to run against a partially-provisioned catalog.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc snapshotDoc
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("catalog: decode import: %w", err)
	}

	created := 0
	for _, desc := range doc.Indexes {
		if c.Has(desc.Table, desc.Column, desc.Kind) {
			continue
		}
		if err := c.Create(ctx, desc); err != nil {
			return created, fmt.Errorf("catalog: import %s.%s (%s): %w", desc.Table, desc.Column, desc.Kind, err)
		}
		created++
	}
	return created, nil
}
