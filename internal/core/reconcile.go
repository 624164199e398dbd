package core

// reconcile.go writes a staging snapshot to the store.
//
// The phases run in dependency order inside one transaction supplied by the
// caller: segments, customers, categories, products, bills, bill lines.
// Any store error aborts the whole import; the caller rolls back.

import (
	"context"
	"fmt"
	"log/slog"
)

type reconcileCounts struct {
	LinesWritten int
	LinesSkipped int
}

func reconcile(ctx context.Context, tx Tx, st *staging, log *slog.Logger) (reconcileCounts, error) {
	var counts reconcileCounts

	// Segments: create missing codes, keep existing ones as they are.
	if err := tx.InsertSegments(ctx, st.segments.values()); err != nil {
		return counts, fmt.Errorf("insert segments: %w", err)
	}
	segmentIDs, err := tx.SegmentIDs(ctx, st.segments.codes())
	if err != nil {
		return counts, fmt.Errorf("resolve segments: %w", err)
	}
	log.Debug("segments reconciled", "staged", st.segments.len())

	// Customers: upsert so name and segment follow the newest import.
	customerIDs := make(map[string]int64, st.customers.len())
	for _, c := range st.customers.values() {
		segID, ok := segmentIDs[c.SegmentCode]
		if !ok {
			return counts, fmt.Errorf("customer %q: segment %q not found after insert", c.Code, c.SegmentCode)
		}
		id, err := tx.UpsertCustomer(ctx, c, segID)
		if err != nil {
			return counts, fmt.Errorf("upsert customer %q: %w", c.Code, err)
		}
		customerIDs[c.Code] = id
	}
	log.Debug("customers reconciled", "staged", st.customers.len())

	// Categories: same rule as segments.
	if err := tx.InsertCategories(ctx, st.categories.values()); err != nil {
		return counts, fmt.Errorf("insert categories: %w", err)
	}
	categoryIDs, err := tx.CategoryIDs(ctx, st.categories.codes())
	if err != nil {
		return counts, fmt.Errorf("resolve categories: %w", err)
	}

	for _, p := range st.products.values() {
		catID, ok := categoryIDs[p.CategoryCode]
		if !ok {
			return counts, fmt.Errorf("product %q: category %q not found after insert", p.Code, p.CategoryCode)
		}
		if _, err := tx.UpsertProduct(ctx, p, catID); err != nil {
			return counts, fmt.Errorf("upsert product %q: %w", p.Code, err)
		}
	}
	log.Debug("products reconciled", "staged", st.products.len())

	for _, b := range st.bills.values() {
		var customerID *int64
		if b.CustomerCode != "" {
			id, ok := customerIDs[b.CustomerCode]
			if !ok {
				return counts, fmt.Errorf("bill %q: customer %q was not staged", b.Code, b.CustomerCode)
			}
			customerID = &id
		}
		if _, err := tx.UpsertBill(ctx, b, customerID); err != nil {
			return counts, fmt.Errorf("upsert bill %q: %w", b.Code, err)
		}
	}
	log.Debug("bills reconciled", "staged", st.bills.len())

	if len(st.lines) == 0 {
		return counts, nil
	}

	billIDs, err := tx.BillIDs(ctx, st.bills.codes())
	if err != nil {
		return counts, fmt.Errorf("resolve bills: %w", err)
	}
	productIDs, err := tx.ProductIDs(ctx, st.lineProductCodes())
	if err != nil {
		return counts, fmt.Errorf("resolve products: %w", err)
	}

	refs := make([]LineRef, 0, len(st.lines))
	for _, l := range st.lines {
		billID, ok := billIDs[l.BillCode]
		if !ok {
			return counts, fmt.Errorf("bill line: bill %q not found after upsert", l.BillCode)
		}
		productID, ok := productIDs[l.ProductCode]
		if !ok {
			log.Warn("bill line skipped, product not found",
				"bill_code", l.BillCode, "product_code", l.ProductCode)
			counts.LinesSkipped++
			continue
		}
		refs = append(refs, LineRef{BillID: billID, ProductID: productID, Quantity: l.Quantity})
	}

	if err := tx.UpsertBillLines(ctx, refs); err != nil {
		return counts, fmt.Errorf("upsert bill lines: %w", err)
	}
	counts.LinesWritten = len(refs)
	log.Debug("bill lines reconciled", "written", counts.LinesWritten, "skipped", counts.LinesSkipped)

	return counts, nil
}
