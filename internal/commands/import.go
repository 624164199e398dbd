package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesboard/internal/core"
)

func newImportCommand(a *app) *cobra.Command {
	var charset string

	cmd := &cobra.Command{
		Use:   "import <file.csv>...",
		Short: "Import one or more sales CSV exports",
		Long: "Each file is imported in its own transaction. Files are processed in\n" +
			"order and the command stops at the first file that fails.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *core.Service) error {
				for _, path := range args {
					if err := importFile(cmd, svc, path, charset); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&charset, "charset", "", "file encoding (default IMPORT_DEFAULT_CHARSET)")

	return cmd
}

func importFile(cmd *cobra.Command, svc *core.Service, path, charset string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	res, err := svc.Import(cmd.Context(), filepath.Base(path), f, charset)
	if err != nil {
		msg := core.MapError(err)
		return fmt.Errorf("importing %s: %w (%s: %s)", path, err, msg.Code, msg.Action)
	}

	printSummary(cmd.OutOrStdout(), path, res)
	return nil
}

func printSummary(w io.Writer, path string, res *core.ImportResult) {
	fmt.Fprintf(w, "%s: %d rows read, %d skipped, %d lines written, %d lines skipped\n",
		path, res.RowsRead, res.RowsSkipped, res.LinesWritten, res.LinesSkipped)
	if len(res.MissingColumns) > 0 {
		fmt.Fprintf(w, "  missing columns: %v\n", res.MissingColumns)
	}
	if res.DefaultedFields > 0 {
		fmt.Fprintf(w, "  defaulted numeric fields: %d\n", res.DefaultedFields)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "  line %d (%s): %s\n", s.Line, s.BillCode, s.Reason)
	}
}
