package tools

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

// defaultBudgetCategories are seeded as zero-amount allocations when a
// client is created, so the budget view starts populated.
var defaultBudgetCategories = []string{"venue", "catering", "photography", "flowers", "music"}

func handleCreateClient(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseCreateClientArgs(raw)
	if err != nil {
		return nil, err
	}
	now := d.now()

	cascades := []func(*sql.Tx, *store.Client) (any, error){
		func(tx *sql.Tx, client *store.Client) (any, error) {
			event := &store.Event{
				ID:        d.newID(),
				TenantID:  caller.TenantID,
				ClientID:  client.ID,
				Name:      "Wedding Day",
				StartsAt:  args.WeddingDate,
				CreatedAt: now,
			}
			return event, store.InsertEvent(ctx, tx, event)
		},
	}
	for _, category := range defaultBudgetCategories {
		category := category
		cascades = append(cascades, func(tx *sql.Tx, client *store.Client) (any, error) {
			item := &store.BudgetItem{
				ID:        d.newID(),
				TenantID:  caller.TenantID,
				ClientID:  client.ID,
				Category:  category,
				CreatedAt: now,
			}
			return item, store.InsertBudgetItem(ctx, tx, item)
		})
	}

	out, err := store.WithCascadeTx(ctx, d.db, d.txOpts,
		func(tx *sql.Tx) (*store.Client, error) {
			client := &store.Client{
				ID:          d.newID(),
				TenantID:    caller.TenantID,
				Name:        args.Name,
				Email:       args.Email,
				Phone:       args.Phone,
				WeddingDate: args.WeddingDate,
				TotalBudget: args.TotalBudget,
				CreatedAt:   now,
			}
			return client, store.InsertClient(ctx, tx, client)
		},
		cascades...,
	)
	if err != nil {
		return nil, err
	}

	cascadeResults := make([]concierge.CascadeResult, 0, len(out.Cascade))
	for _, c := range out.Cascade {
		switch v := c.(type) {
		case *store.Event:
			cascadeResults = append(cascadeResults, concierge.CascadeResult{
				Action: "created", EntityType: "event", EntityID: v.ID,
			})
		case *store.BudgetItem:
			cascadeResults = append(cascadeResults, concierge.CascadeResult{
				Action: "seeded", EntityType: "budget_item", EntityID: v.ID,
			})
		}
	}

	return &concierge.ToolExecutionResult{
		Success:        true,
		ToolName:       string(NameCreateClient),
		Data:           out.Main,
		Message:        fmt.Sprintf("Created client %s with a default event and %d budget categories", out.Main.Name, len(defaultBudgetCategories)),
		CascadeResults: cascadeResults,
	}, nil
}
