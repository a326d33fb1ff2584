package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"os"

	"github.com/shrek82/jmap/core"
	"github.com/spf13/cobra"
)

type (
	loadFlags struct {
		parallel int
	}
)

func (c *Cmd) getLoadCmd() *cobra.Command {
	loadCmd := &cobra.Command{
		Use:   "load table file...",
		Short: "Bulk loads JSON lines",
		Long: `Bulk loads files of JSON objects, one per line, into a table. Object keys
are matched to columns; files are loaded concurrently`,
		Args: cobra.MinimumNArgs(2),
		RunE: c.execLoad,
	}
	loadCmd.PersistentFlags().IntVarP(&c.loadFlags.parallel, "parallel", "j", 4, "files loaded at once")
	return loadCmd
}

func (c *Cmd) execLoad(cmd *cobra.Command, args []string) error {
	db, err := c.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	table := args[0]
	fns := make([]func(ctx context.Context) error, 0, len(args)-1)
	for _, name := range args[1:] {
		fns = append(fns, func(ctx context.Context) error {
			n, err := loadFile(ctx, db, table, name)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", name, err)
			}
			log.Printf("Loaded %d rows from %s\n", n, name)
			return nil
		})
	}
	if err := core.Gather(cmd.Context(), c.loadFlags.parallel, fns...); err != nil {
		return err
	}
	if c.rootFlags.debugMode {
		log.Printf("%s\n", db.Stats())
	}
	return nil
}

func loadFile(ctx context.Context, db *core.DB, table, name string) (int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var readErr error
	n, err := core.BulkLoad(ctx, db, table, jsonLines(f, func(err error) {
		readErr = err
		cancel()
	}))
	if readErr != nil {
		return 0, readErr
	}
	return n, err
}

// jsonLines yields one record per non-empty line. The first malformed line
// ends the sequence and is passed to fail.
func jsonLines(f *os.File, fail func(error)) iter.Seq[*core.Record] {
	return func(yield func(*core.Record) bool) {
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		line := 0
		for sc.Scan() {
			line++
			if len(sc.Bytes()) == 0 {
				continue
			}
			rec := core.NewRecord(0)
			if err := json.Unmarshal(sc.Bytes(), rec); err != nil {
				fail(fmt.Errorf("line %d: %w", line, err))
				return
			}
			if !yield(rec) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			fail(err)
		}
	}
}
