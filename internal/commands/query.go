package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesboard/internal/core"
)

func newChartCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Print revenue per bill and product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *core.Service) error {
				records, err := svc.ChartData(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					if records == nil {
						records = []core.ChartRecord{}
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BILL\tCUSTOMER\tCREATED\tPRODUCT\tCATEGORY\tQTY\tREVENUE")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
						r.BillCode, r.CustomerCode, r.CreatedAt, r.ProductCode, r.CategoryCode, r.Quantity, r.Revenue)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the same JSON the web chart uses")

	return cmd
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent imports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *core.Service) error {
				records, err := svc.History(cmd.Context(), limit)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tFILE\tSTATUS\tROWS\tSKIPPED\tLINES\tERROR")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						r.StartedAt.Format(core.TimestampLayout), r.FileName, r.Status,
						r.RowsRead, r.RowsSkipped, r.LinesWritten, r.Error)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "number of imports to list (default IMPORT_HISTORY_LIMIT)")

	return cmd
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print row counts per entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *core.Service) error {
				st, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "segments\t%d\n", st.Segments)
				fmt.Fprintf(tw, "customers\t%d\n", st.Customers)
				fmt.Fprintf(tw, "categories\t%d\n", st.Categories)
				fmt.Fprintf(tw, "products\t%d\n", st.Products)
				fmt.Fprintf(tw, "bills\t%d\n", st.Bills)
				fmt.Fprintf(tw, "bill lines\t%d\n", st.BillLines)
				return tw.Flush()
			})
		},
	}
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening a store applies the embedded schema.
			return a.withService(cmd, func(*core.Service) error {
				fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.Database.Driver)
				return nil
			})
		},
	}
}
