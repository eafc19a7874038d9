package tools

import (
	"context"
	"fmt"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

func handleGetClient(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseGetClientArgs(raw)
	if err != nil {
		return nil, err
	}
	client, err := resolveClient(ctx, d.db, caller.TenantID, args)
	if err != nil {
		return nil, err
	}
	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameGetClient),
		Data:     client,
		Message:  fmt.Sprintf("Found client %s", client.Name),
	}, nil
}

func handleListGuests(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return nil, err
	}
	guests, err := store.ListGuests(ctx, d.db, caller.TenantID, clientID)
	if err != nil {
		return nil, err
	}

	accepted, declined := 0, 0
	for _, g := range guests {
		switch g.RSVPStatus {
		case store.RSVPAccepted:
			accepted++
		case store.RSVPDeclined:
			declined++
		}
	}
	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameListGuests),
		Data: map[string]any{
			"guests":   guests,
			"total":    len(guests),
			"accepted": accepted,
			"declined": declined,
		},
		Message: fmt.Sprintf("%d guests (%d accepted, %d declined)", len(guests), accepted, declined),
	}, nil
}

func handleGetBudgetSummary(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return nil, err
	}
	client, err := store.GetClient(ctx, d.db, caller.TenantID, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, concierge.NotFound("client %s not found", clientID)
	}

	items, err := store.ListBudgetItems(ctx, d.db, caller.TenantID, clientID)
	if err != nil {
		return nil, err
	}
	spent, paid, err := store.BudgetTotals(ctx, d.db, caller.TenantID, clientID)
	if err != nil {
		return nil, err
	}
	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameGetBudgetSummary),
		Data: map[string]any{
			"totalBudget": client.TotalBudget,
			"spent":       spent,
			"paid":        paid,
			"remaining":   client.TotalBudget - spent,
			"items":       items,
		},
		Message: fmt.Sprintf("%s of %s allocated", formatMoney(spent), formatMoney(client.TotalBudget)),
	}, nil
}

func handleGetTimeline(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return nil, err
	}
	items, err := store.ListTimeline(ctx, d.db, caller.TenantID, clientID)
	if err != nil {
		return nil, err
	}
	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameGetTimeline),
		Data:     map[string]any{"items": items},
		Message:  fmt.Sprintf("%d timeline items", len(items)),
	}, nil
}

func handleListVendors(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, _ argBag) (*concierge.ToolExecutionResult, error) {
	vendors, err := store.ListVendors(ctx, d.db, caller.TenantID)
	if err != nil {
		return nil, err
	}
	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameListVendors),
		Data:     map[string]any{"vendors": vendors},
		Message:  fmt.Sprintf("%d vendors", len(vendors)),
	}, nil
}
