package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/makr-code/themis/internal/aql"
	"github.com/makr-code/themis/internal/aql/translate"
	"github.com/makr-code/themis/internal/exec"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <aql>",
		Short: "Parse, plan and execute one AQL query",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runQuery(args[0])
		},
	}
	return cmd
}

func runQuery(src string) error {
	ctx := context.Background()
	s, err := newStore(ctx)
	if err != nil {
		return err
	}
	return executeAndPrint(ctx, s.exec, src, os.Stdout)
}

// executeAndPrint parses, translates and executes src against eng,
// writing one JSON value per result row to w; also used by serveCmd's
// per-line REPL loop.
func executeAndPrint(ctx context.Context, eng *exec.Engine, src string, w *os.File) error {
	q, err := aql.Parse(src)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	plan, err := translate.Translate(q)
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	res, err := eng.Execute(ctx, plan)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	enc := json.NewEncoder(w)
	for _, row := range res.Rows {
		if err := enc.Encode(valueToJSON(row.Value)); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	return nil
}
