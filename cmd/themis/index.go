package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/makr-code/themis/internal/core"
)

type indexCreateFlags struct {
	table     string
	column    string
	columns   string
	kind      string
	unique    bool
	ttl       int64
	dim       int
	metric    string
	minX      float64
	minY      float64
	maxX      float64
	maxY      float64
	threeD    bool
	minZ      float64
	maxZ      float64
}

type indexDropFlags struct {
	table  string
	column string
	kind   string
}

type indexRebuildFlags struct {
	table  string
	column string
	kind   string
	dryRun bool
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage secondary index descriptors",
	}
	cmd.AddCommand(indexCreateCmd())
	cmd.AddCommand(indexDropCmd())
	cmd.AddCommand(indexRebuildCmd())
	return cmd
}

func indexCreateCmd() *cobra.Command {
	flags := &indexCreateFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new index on a table column",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runIndexCreate(flags)
		},
	}
	cmd.Flags().StringVar(&flags.table, "table", "", "Table name (required)")
	cmd.Flags().StringVar(&flags.column, "column", "", "Column name (required for all kinds except composite)")
	cmd.Flags().StringVar(&flags.columns, "columns", "", "Comma-separated column list (composite indexes only)")
	cmd.Flags().StringVar(&flags.kind, "kind", "", "Index kind: equality|range|sparse|ttl|fulltext|spatial|vector_ann|composite")
	cmd.Flags().BoolVar(&flags.unique, "unique", false, "Enforce uniqueness (equality/composite only)")
	cmd.Flags().Int64Var(&flags.ttl, "ttl-seconds", 0, "Expiry window in seconds (ttl indexes only)")
	cmd.Flags().IntVar(&flags.dim, "dim", 0, "Vector dimension (vector_ann indexes only)")
	cmd.Flags().StringVar(&flags.metric, "metric", "l2", "Vector distance metric: l2|cosine|inner_product")
	cmd.Flags().Float64Var(&flags.minX, "min-x", -180, "Spatial domain min X (spatial indexes only)")
	cmd.Flags().Float64Var(&flags.minY, "min-y", -90, "Spatial domain min Y (spatial indexes only)")
	cmd.Flags().Float64Var(&flags.maxX, "max-x", 180, "Spatial domain max X (spatial indexes only)")
	cmd.Flags().Float64Var(&flags.maxY, "max-y", 90, "Spatial domain max Y (spatial indexes only)")
	cmd.Flags().BoolVar(&flags.threeD, "3d", false, "Enable a Z range for the spatial domain")
	cmd.Flags().Float64Var(&flags.minZ, "min-z", 0, "Spatial domain min Z (when --3d is set)")
	cmd.Flags().Float64Var(&flags.maxZ, "max-z", 0, "Spatial domain max Z (when --3d is set)")
	return cmd
}

func runIndexCreate(flags *indexCreateFlags) error {
	if flags.table == "" {
		return fmt.Errorf("--table is required")
	}
	ctx := context.Background()
	s, err := newStore(ctx)
	if err != nil {
		return err
	}

	kind := core.IndexKind(flags.kind)
	switch kind {
	case core.IndexEquality:
		err = s.secidx.CreateEqualityIndex(ctx, flags.table, flags.column, flags.unique)
	case core.IndexRange:
		err = s.secidx.CreateRangeIndex(ctx, flags.table, flags.column)
	case core.IndexSparse:
		err = s.secidx.CreateSparseIndex(ctx, flags.table, flags.column)
	case core.IndexTTL:
		err = s.secidx.CreateTTLIndex(ctx, flags.table, flags.column, flags.ttl)
	case core.IndexFulltext:
		err = s.secidx.CreateFulltextIndex(ctx, flags.table, flags.column, core.FulltextParams{
			Lowercase: true, BM25K1: s.tunables.FulltextBM25K1, BM25B: s.tunables.FulltextBM25B,
		})
	case core.IndexComposite:
		cols := strings.Split(flags.columns, ",")
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		err = s.secidx.CreateCompositeIndex(ctx, flags.table, cols, flags.unique)
	case core.IndexSpatial:
		err = s.catalog.Create(ctx, core.IndexDescriptor{
			Table: flags.table, Column: flags.column, Kind: core.IndexSpatial,
			Spatial: core.SpatialParams{
				MinX: flags.minX, MinY: flags.minY, MaxX: flags.maxX, MaxY: flags.maxY,
				ThreeD: flags.threeD, MinZ: flags.minZ, MaxZ: flags.maxZ,
			},
		})
	case core.IndexVectorANN:
		if flags.dim <= 0 {
			return fmt.Errorf("--dim is required and must be positive for vector_ann indexes")
		}
		err = s.vector.Init(ctx, flags.table, flags.column, core.DefaultVectorParams(flags.dim, core.Metric(flags.metric)))
	default:
		return fmt.Errorf("unsupported --kind %q", flags.kind)
	}
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	fmt.Printf("created %s index on %s.%s\n", flags.kind, flags.table, flags.column)
	return writeBackCatalog(s)
}

func indexDropCmd() *cobra.Command {
	flags := &indexDropFlags{}
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop a registered index",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runIndexDrop(flags)
		},
	}
	cmd.Flags().StringVar(&flags.table, "table", "", "Table name (required)")
	cmd.Flags().StringVar(&flags.column, "column", "", "Column name (required)")
	cmd.Flags().StringVar(&flags.kind, "kind", "", "Index kind (required)")
	return cmd
}

func runIndexDrop(flags *indexDropFlags) error {
	ctx := context.Background()
	s, err := newStore(ctx)
	if err != nil {
		return err
	}
	if err := s.secidx.DropIndex(ctx, flags.table, flags.column, core.IndexKind(flags.kind)); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	fmt.Printf("dropped %s index on %s.%s\n", flags.kind, flags.table, flags.column)
	return writeBackCatalog(s)
}

// writeBackCatalog re-exports the in-memory catalog to --catalog, if set,
// so the descriptor change survives past this process's ephemeral
// in-memory store (spec §3's descriptor snapshot export/import, used here
// to chain CLI invocations against the same logical catalog).
func writeBackCatalog(s *store) error {
	if globalFlags.catalogPath == "" {
		return nil
	}
	f, err := os.Create(globalFlags.catalogPath)
	if err != nil {
		return fmt.Errorf("write back catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := s.catalog.Export(f); err != nil {
		return fmt.Errorf("write back catalog: %w", err)
	}
	return nil
}

func indexRebuildCmd() *cobra.Command {
	flags := &indexRebuildFlags{}
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate an index's entries from current rows",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runIndexRebuild(flags)
		},
	}
	cmd.Flags().StringVar(&flags.table, "table", "", "Table name (required)")
	cmd.Flags().StringVar(&flags.column, "column", "", "Column name (required)")
	cmd.Flags().StringVar(&flags.kind, "kind", "", "Index kind (required)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Report the entry count without mutating the store")
	return cmd
}

func runIndexRebuild(flags *indexRebuildFlags) error {
	ctx := context.Background()
	s, err := newStore(ctx)
	if err != nil {
		return err
	}
	err = s.secidx.Rebuild(ctx, flags.table, flags.column, core.IndexKind(flags.kind), flags.dryRun, func(done, total int) bool {
		fmt.Printf("\r  %d/%d", done, total)
		return true
	})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	if flags.dryRun {
		fmt.Printf("dry run complete for %s.%s (%s)\n", flags.table, flags.column, flags.kind)
	} else {
		fmt.Printf("rebuilt %s index on %s.%s\n", flags.kind, flags.table, flags.column)
	}
	return nil
}
