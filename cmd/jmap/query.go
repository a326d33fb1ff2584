package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shrek82/jmap/core"
	"github.com/spf13/cobra"
)

type (
	queryFlags struct {
		params    string
		procedure bool
	}
)

func (c *Cmd) getQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query command",
		Short: "Runs a command",
		Long: `Runs a command and prints every result set as JSON lines, one record
per line, with a blank line between sets`,
		Args: cobra.ExactArgs(1),
		RunE: c.execQuery,
	}
	queryCmd.PersistentFlags().StringVar(&c.queryFlags.params, "params", "", "named parameters as a JSON object")
	queryCmd.PersistentFlags().BoolVar(&c.queryFlags.procedure, "procedure", false, "treat the command as a stored procedure name")
	return queryCmd
}

func (c *Cmd) execQuery(cmd *cobra.Command, args []string) error {
	var params map[string]any
	if c.queryFlags.params != "" {
		if err := json.Unmarshal([]byte(c.queryFlags.params), &params); err != nil {
			return fmt.Errorf("invalid --params: %w", err)
		}
	}
	var opts []core.CallOption
	if c.queryFlags.procedure {
		opts = append(opts, core.AsProcedure())
	}

	db, err := c.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	var p any
	if params != nil {
		p = params
	}
	sets, err := core.Query(cmd.Context(), db, args[0], p, core.All[*core.Record](), opts...)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	enc := json.NewEncoder(w)
	for i, set := range sets {
		if i > 0 {
			fmt.Fprintln(w)
		}
		for _, rec := range set {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
