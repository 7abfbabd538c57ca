package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"docsheet/internal/sheet"
)

var cellCmd = &cobra.Command{
	Use:   "cell [id] | [row] [col]",
	Short: "Convert between cell identifiers and row/column indices",
	Long: `Translate a cell identifier into its 0-based row and column, or a
0-based row and column into the identifier.

Identifiers are one column letter A-Z followed by the 1-based row number.`,
	Example: `  docsheet cell B3      # row 2, col 1
  docsheet cell 2 1     # B3`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCell,
}

func init() {
	rootCmd.AddCommand(cellCmd)
}

func runCell(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		row, col, err := sheet.ParseCellID(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s row=%d col=%d\n", sheet.MustCellID(row, col), row, col)
		return nil
	}

	row, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("row must be an integer: %q", args[0])
	}
	col, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("col must be an integer: %q", args[1])
	}

	id, err := sheet.CellID(row, col)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}
