package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived session, executing one AQL query per stdin line",
		Long: `Serve loads the configured catalog/seed once, then reads AQL queries from
stdin line by line, writing each query's result rows as JSON to stdout.

Blank lines are skipped; EOF ends the session. A query that fails to parse, plan or
execute reports its error on stderr and does not abort the session.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}
	return cmd
}

func runServe() error {
	ctx := context.Background()
	s, err := newStore(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "themis serve: ready, reading AQL queries from stdin")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := executeAndPrint(ctx, s.exec, line, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}
