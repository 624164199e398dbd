package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/salesboard/internal/core"
)

// entryFlags maps command line flags onto the entry form fields, so the CLI
// and the web form share one parser.
var entryFlags = []struct {
	flag, field, usage string
}{
	{"bill", core.FieldBillCode, "bill code (required)"},
	{"customer", core.FieldCustomerCode, "customer code"},
	{"customer-name", core.FieldCustomerName, "customer name"},
	{"segment", core.FieldSegmentCode, "customer segment code"},
	{"segment-info", core.FieldSegmentInfo, "customer segment description"},
	{"time", core.FieldCreatedAt, "bill time, e.g. 2024-01-31 14:05:00 (default now)"},
	{"category", core.FieldCategoryCode, "category code"},
	{"category-name", core.FieldCategoryName, "category name"},
	{"product", core.FieldProductCode, "product code (required)"},
	{"product-name", core.FieldProductName, "product name"},
	{"quantity", core.FieldQuantity, "quantity"},
	{"price", core.FieldPrice, "unit price, used only when the product is new"},
}

func newEntryCommand(a *app) *cobra.Command {
	values := make(map[string]*string, len(entryFlags))

	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Record a single bill with one line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *core.Service) error {
				entry, err := core.ParseEntryForm(func(field string) string {
					if v, ok := values[field]; ok {
						return *v
					}
					return ""
				}, svc.Location())
				if err != nil {
					return err
				}

				if err := svc.CreateEntry(cmd.Context(), entry); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "bill %s recorded\n", entry.BillCode)
				return nil
			})
		},
	}

	for _, f := range entryFlags {
		values[f.field] = cmd.Flags().String(f.flag, "", f.usage)
	}
	_ = cmd.MarkFlagRequired("bill")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}
