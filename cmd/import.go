package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/zapquiz/internal/importer"
	"github.com/abhisek/zapquiz/internal/ui/theme"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a question bank from a .csv or .xlsx file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sheet, _ := cmd.Flags().GetString("sheet")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := importer.New(a.store, a.log).ImportFile(cmd.Context(), args[0], importer.Options{
			Sheet:  sheet,
			DryRun: dryRun,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		verb := "Imported"
		if dryRun {
			verb = "Checked"
		}
		fmt.Fprintf(out, "%s %d rows across %d units: %d created, %d updated, %d skipped\n",
			verb, res.Rows, res.Units, res.Created, res.Updated, res.Skipped)
		for _, e := range res.Errors {
			fmt.Fprintln(out, theme.Incorrect.Render("  "+e))
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("%d rows rejected", len(res.Errors))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("sheet", "", "Worksheet to read from an .xlsx file (default: first sheet)")
	importCmd.Flags().Bool("dry-run", false, "Validate rows without writing")
}
