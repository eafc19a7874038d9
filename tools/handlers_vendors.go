package tools

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

func handleAddVendor(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseAddVendorArgs(raw)
	if err != nil {
		return nil, err
	}

	vendor := &store.Vendor{
		ID:        d.newID(),
		TenantID:  caller.TenantID,
		Name:      args.Name,
		Category:  args.Category,
		Email:     args.Email,
		Phone:     args.Phone,
		Cost:      args.Cost,
		CreatedAt: d.now(),
	}
	err = store.WithTx(ctx, d.db, d.txOpts, func(tx *sql.Tx) error {
		return store.InsertVendor(ctx, tx, vendor)
	})
	if err != nil {
		return nil, err
	}

	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameAddVendor),
		Data:     vendor,
		Message:  fmt.Sprintf("Added vendor %s (%s)", vendor.Name, vendor.Category),
	}, nil
}

func handleBookVendor(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseBookVendorArgs(raw)
	if err != nil {
		return nil, err
	}

	out, err := store.WithCascadeTx(ctx, d.db, d.txOpts,
		func(tx *sql.Tx) (*store.Vendor, error) {
			if _, err := requireClient(ctx, tx, caller.TenantID, args.ClientID); err != nil {
				return nil, err
			}
			vendor, err := resolveVendor(ctx, tx, caller.TenantID, args.VendorID, args.VendorName)
			if err != nil {
				return nil, err
			}
			ok, err := store.MarkVendorBooked(ctx, tx, caller.TenantID, vendor.ID, args.ClientID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, concierge.NotFound("vendor %s not found", vendor.ID)
			}
			vendor.Booked = true
			vendor.ClientID = &args.ClientID
			return vendor, nil
		},
		func(tx *sql.Tx, vendor *store.Vendor) (any, error) {
			// Booked vendors with a known cost become a budget line so the
			// summary reflects the commitment immediately.
			if vendor.Cost <= 0 {
				return nil, nil
			}
			item := &store.BudgetItem{
				ID:          d.newID(),
				TenantID:    caller.TenantID,
				ClientID:    args.ClientID,
				Category:    vendor.Category,
				Description: vendor.Name,
				Amount:      vendor.Cost,
				VendorID:    &vendor.ID,
				CreatedAt:   d.now(),
			}
			return item, store.InsertBudgetItem(ctx, tx, item)
		},
	)
	if err != nil {
		return nil, err
	}

	cascadeResults := make([]concierge.CascadeResult, 0, 1)
	for _, c := range out.Cascade {
		if item, ok := c.(*store.BudgetItem); ok {
			cascadeResults = append(cascadeResults, concierge.CascadeResult{
				Action: "created", EntityType: "budget_item", EntityID: item.ID,
			})
		}
	}

	return &concierge.ToolExecutionResult{
		Success:        true,
		ToolName:       string(NameBookVendor),
		Data:           out.Main,
		Message:        fmt.Sprintf("Booked %s for %s", out.Main.Name, formatMoney(out.Main.Cost)),
		CascadeResults: cascadeResults,
	}, nil
}
