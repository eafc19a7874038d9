package tools

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

func handleAddBudgetItem(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseAddBudgetItemArgs(raw)
	if err != nil {
		return nil, err
	}

	item := &store.BudgetItem{
		ID:          d.newID(),
		TenantID:    caller.TenantID,
		ClientID:    args.ClientID,
		Category:    args.Category,
		Description: args.Description,
		Amount:      args.Amount,
		CreatedAt:   d.now(),
	}
	err = store.WithTx(ctx, d.db, d.txOpts, func(tx *sql.Tx) error {
		if _, err := requireClient(ctx, tx, caller.TenantID, args.ClientID); err != nil {
			return err
		}
		return store.InsertBudgetItem(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}

	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameAddBudgetItem),
		Data:     item,
		Message:  fmt.Sprintf("Added %s to the %s budget at %s", item.Description, item.Category, formatMoney(item.Amount)),
	}, nil
}

func handleUpdateBudgetItem(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseUpdateBudgetItemArgs(raw)
	if err != nil {
		return nil, err
	}

	var item *store.BudgetItem
	err = store.WithTx(ctx, d.db, d.txOpts, func(tx *sql.Tx) error {
		item, err = resolveBudgetItem(ctx, tx, caller.TenantID, args.ClientID, args)
		if err != nil {
			return err
		}
		if args.Amount != nil {
			item.Amount = *args.Amount
		}
		if args.Paid != nil {
			item.Paid = *args.Paid
		}
		if args.Category != "" {
			item.Category = args.Category
		}
		ok, err := store.UpdateBudgetItem(ctx, tx, item)
		if err != nil {
			return err
		}
		if !ok {
			return concierge.NotFound("budget item %s not found", item.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameUpdateBudgetItem),
		Data:     item,
		Message:  fmt.Sprintf("Updated budget item %s", item.Description),
	}, nil
}
