package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/abmgate/abmgate/internal/abm"
	"github.com/spf13/cobra"
)

var (
	opWhere string
	opBody  string
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables and views of the configured schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return operate(cmd, abm.Request{Table: abm.TablesSentinel, Method: "list"})
	},
}

var structureCmd = &cobra.Command{
	Use:   "structure <table>",
	Short: "Describe the columns of a table, with foreign-key targets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return operate(cmd, abm.Request{Table: args[0], Method: "structure"})
	},
}

var opCmd = &cobra.Command{
	Use:   "op <table> <method>",
	Short: "Run one operation (create, update, delete, list, find, structure)",
	Example: `  abmgate op products list --body '{"cols":"id,name","limit":5}'
  abmgate op products update --where "$(abmgate encode-where '{"id":1}')" --body '{"price":15}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return operate(cmd, abm.Request{
			Table:  args[0],
			Method: args[1],
			Where:  opWhere,
			Body:   json.RawMessage(opBody),
		})
	},
}

func init() {
	opCmd.Flags().StringVar(&opWhere, "where", "", "encoded predicate (see encode-where)")
	opCmd.Flags().StringVar(&opBody, "body", "", "JSON body")
	rootCmd.AddCommand(tablesCmd, structureCmd, opCmd)
}

func operate(cmd *cobra.Command, req abm.Request) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.dispatcher.Operate(cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res.Data())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
