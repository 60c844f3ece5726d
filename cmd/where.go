package cmd

import (
	"errors"
	"fmt"

	"github.com/abmgate/abmgate/internal/predicate"
	"github.com/abmgate/abmgate/internal/record"
	"github.com/spf13/cobra"
)

var encodeWhereCmd = &cobra.Command{
	Use:   "encode-where <json-object>",
	Short: "Encode a JSON object as a where payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var where record.Fields
		if err := where.UnmarshalJSON([]byte(args[0])); err != nil {
			return fmt.Errorf("predicate must be a JSON object: %w", err)
		}
		encoded, err := predicate.Encode(where)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
		return err
	},
}

var decodeWhereCmd = &cobra.Command{
	Use:   "decode-where <payload>",
	Short: "Decode a where payload back to JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		where, ok := predicate.Decode(args[0])
		if !ok {
			return errors.New("payload does not decode to a JSON object")
		}
		return writeJSON(cmd.OutOrStdout(), where)
	},
}

func init() {
	rootCmd.AddCommand(encodeWhereCmd, decodeWhereCmd)
}
