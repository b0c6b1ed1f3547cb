package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/makr-code/themis/internal/capability"
	"github.com/makr-code/themis/internal/catalog"
	"github.com/makr-code/themis/internal/config"
	"github.com/makr-code/themis/internal/core"
	"github.com/makr-code/themis/internal/entitystore"
	"github.com/makr-code/themis/internal/exec"
	"github.com/makr-code/themis/internal/graph"
	"github.com/makr-code/themis/internal/kv"
	"github.com/makr-code/themis/internal/kv/memkv"
	"github.com/makr-code/themis/internal/secidx"
	"github.com/makr-code/themis/internal/spatial"
	"github.com/makr-code/themis/internal/vector"
	"github.com/makr-code/themis/internal/writepath"
)

// store bundles every engine the CLI needs, wired over one embedded
// internal/kv/memkv.Store per invocation, per spec §4.12/§6 ("the
// underlying KV store ... remains an external collaborator"). The CLI's
// "embedded mode" stands in for that collaborator with the in-memory
// reference implementation, since no persistent kv.Store ships with
// Themis itself.
type store struct {
	kv       kv.Store
	catalog  *catalog.Catalog
	secidx   *secidx.Engine
	spatial  *spatial.Engine
	vector   *vector.Engine
	graph    *graph.Engine
	exec     *exec.Engine
	write    *writepath.Path
	tunables config.Tunables
}

// newStore assembles a store from the root persistent flags: the config
// file supplies tunables, the catalog file preloads index descriptors, and
// the seed file preloads entity rows.
func newStore(ctx context.Context) (*store, error) {
	tunables, err := config.LoadFile(globalFlags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	backing := memkv.New()
	cat := catalog.New(backing)
	si := secidx.New(backing, cat, entitystore.JSONCodec{})
	sp := spatial.New(backing, cat)
	ve := vector.New(backing, cat)
	gr := graph.New(backing)

	ex := exec.NewEngine(si, sp, ve, gr, cat).
		WithOverfetch(tunables.VectorFirstOverfetch).
		WithBBoxRatioThreshold(tunables.BBoxRatioThreshold).
		WithGeometryBackend(capability.GeometryBackendCPU)

	s := &store{
		kv:       backing,
		catalog:  cat,
		secidx:   si,
		spatial:  sp,
		vector:   ve,
		graph:    gr,
		exec:     ex,
		write:    writepath.New(backing, cat, si, sp, ve, writepath.ModeAtomic),
		tunables: tunables,
	}

	if globalFlags.catalogPath != "" {
		if err := s.loadCatalog(ctx, globalFlags.catalogPath); err != nil {
			return nil, err
		}
	}
	if globalFlags.seedPath != "" {
		if err := s.loadSeed(ctx, globalFlags.seedPath); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *store) loadCatalog(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog file: %w", err)
	}
	defer func() { _ = f.Close() }()

	n, err := s.catalog.Import(ctx, f)
	if err != nil {
		return fmt.Errorf("import catalog: %w", err)
	}
	fmt.Fprintf(os.Stderr, "loaded %d index descriptor(s) from %s\n", n, path)
	return nil
}

// seedDoc is the JSON shape of an entity seed file: a flat list of rows,
// each naming its table, primary key, and a plain JSON object of scalar
// fields. Vector, geometry and graph-edge fields aren't representable in
// this minimal format, and the AQL accepted by query/serve has no INSERT
// or other write statement, so the CLI cannot load such rows.
type seedDoc struct {
	Entities []seedEntity `json:"entities"`
}

type seedEntity struct {
	Table  string         `json:"table"`
	PK     string         `json:"pk"`
	Fields map[string]any `json:"fields"`
}

func (s *store) loadSeed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var doc seedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode seed file: %w", err)
	}

	for _, se := range doc.Entities {
		ent := core.NewEntity(se.Table, []byte(se.PK))
		for name, raw := range se.Fields {
			ent.Set(name, core.FromGo(raw))
		}
		if err := s.write.Put(ctx, se.Table, ent); err != nil {
			return fmt.Errorf("seed %s/%s: %w", se.Table, se.PK, err)
		}
	}
	fmt.Fprintf(os.Stderr, "loaded %d entit(y/ies) from %s\n", len(doc.Entities), path)
	return nil
}

// valueToJSON converts a core.Value into a plain Go value suitable for
// json.Marshal, mirroring the execution engine's internal value-to-Go
// coercion (internal/exec/eval.go's valueToGo) since query output crosses
// the package boundary into the CLI.
func valueToJSON(v core.Value) any {
	switch v.Kind {
	case core.KindNull:
		return nil
	case core.KindBool:
		return v.Bool
	case core.KindI64:
		return v.I64
	case core.KindF64:
		return v.F64
	case core.KindString:
		return v.Str
	case core.KindBytes:
		return v.Bytes
	case core.KindVector:
		return v.Vector
	case core.KindJSON:
		return v.JSON
	default:
		return nil
	}
}
