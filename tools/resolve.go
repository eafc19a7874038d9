package tools

import (
	"context"
	"fmt"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

// Free-text entity references resolve against the tenant's data. More than
// one plausible match never guesses: the caller gets Ambiguous with the
// candidate list and can re-prompt the user.

func resolveClient(ctx context.Context, q store.Querier, tenantID string, args getClientArgs) (*store.Client, error) {
	if args.ClientID != "" {
		client, err := store.GetClient(ctx, q, tenantID, args.ClientID)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, concierge.NotFound("client %s not found", args.ClientID)
		}
		return client, nil
	}

	matches, err := store.ClientsByName(ctx, q, tenantID, args.ClientName)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, concierge.NotFound("no client named %q", args.ClientName)
	case 1:
		return &matches[0], nil
	default:
		candidates := make([]concierge.Candidate, 0, len(matches))
		for _, c := range matches {
			candidates = append(candidates, concierge.Candidate{ID: c.ID, Label: c.Name})
		}
		return nil, concierge.Ambiguous(fmt.Sprintf("%d clients match %q", len(matches), args.ClientName), candidates)
	}
}

func resolveGuest(ctx context.Context, q store.Querier, tenantID, clientID string, ref guestRef) (*store.Guest, error) {
	if ref.GuestID != "" {
		guest, err := store.GetGuest(ctx, q, tenantID, ref.GuestID)
		if err != nil {
			return nil, err
		}
		if guest == nil || guest.ClientID != clientID {
			return nil, concierge.NotFound("guest %s not found", ref.GuestID)
		}
		return guest, nil
	}

	matches, err := store.GuestsByName(ctx, q, tenantID, clientID, ref.GuestName)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, concierge.NotFound("no guest named %q", ref.GuestName)
	case 1:
		return &matches[0], nil
	default:
		candidates := make([]concierge.Candidate, 0, len(matches))
		for _, g := range matches {
			candidates = append(candidates, concierge.Candidate{ID: g.ID, Label: g.FullName()})
		}
		return nil, concierge.Ambiguous(fmt.Sprintf("%d guests match %q", len(matches), ref.GuestName), candidates)
	}
}

func resolveVendor(ctx context.Context, q store.Querier, tenantID, vendorID, vendorName string) (*store.Vendor, error) {
	if vendorID != "" {
		vendor, err := store.GetVendor(ctx, q, tenantID, vendorID)
		if err != nil {
			return nil, err
		}
		if vendor == nil {
			return nil, concierge.NotFound("vendor %s not found", vendorID)
		}
		return vendor, nil
	}

	matches, err := store.VendorsByName(ctx, q, tenantID, vendorName)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, concierge.NotFound("no vendor named %q", vendorName)
	case 1:
		return &matches[0], nil
	default:
		candidates := make([]concierge.Candidate, 0, len(matches))
		for _, v := range matches {
			candidates = append(candidates, concierge.Candidate{ID: v.ID, Label: v.Name})
		}
		return nil, concierge.Ambiguous(fmt.Sprintf("%d vendors match %q", len(matches), vendorName), candidates)
	}
}

func resolveBudgetItem(ctx context.Context, q store.Querier, tenantID, clientID string, args updateBudgetItemArgs) (*store.BudgetItem, error) {
	if args.ItemID != "" {
		item, err := store.GetBudgetItem(ctx, q, tenantID, args.ItemID)
		if err != nil {
			return nil, err
		}
		if item == nil || item.ClientID != clientID {
			return nil, concierge.NotFound("budget item %s not found", args.ItemID)
		}
		return item, nil
	}

	matches, err := store.BudgetItemsByDescription(ctx, q, tenantID, clientID, args.Description)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, concierge.NotFound("no budget item matching %q", args.Description)
	case 1:
		return &matches[0], nil
	default:
		candidates := make([]concierge.Candidate, 0, len(matches))
		for _, b := range matches {
			label := b.Description
			if label == "" {
				label = b.Category
			}
			candidates = append(candidates, concierge.Candidate{ID: b.ID, Label: label})
		}
		return nil, concierge.Ambiguous(fmt.Sprintf("%d budget items match %q", len(matches), args.Description), candidates)
	}
}
