package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

// A warningCheck inspects one proposed call and returns zero or more
// warnings. Checks are additive and independent; a failing check is logged
// and skipped, never blocking the preview.
type warningCheck func(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, args argBag) ([]string, error)

var warningChecks = map[Name][]warningCheck{
	NameCreateClient:     {pastDateCheck},
	NameAddTimelineItem:  {pastDateCheck},
	NameAddGuest:         {duplicateGuestCheck},
	NameAddVendor:        {duplicateVendorCheck},
	NameUpdateGuestRSVP:  {declinedSeatingCheck},
	NameAddBudgetItem:    {budgetOverrunCheck},
	NameUpdateBudgetItem: {budgetUpdateOverrunCheck},
	NameBookVendor:       {vendorCostOverrunCheck},
}

func (d *Dispatcher) runWarningChecks(ctx context.Context, meta Metadata, caller concierge.CallerContext, args argBag) []string {
	var warnings []string
	for _, check := range warningChecks[meta.Name] {
		found, err := check(ctx, d, caller, args)
		if err != nil {
			d.logger.Warnw("preview warning check failed", "tool", meta.Name, "err", err)
			continue
		}
		warnings = append(warnings, found...)
	}
	return warnings
}

// dateArgKeys are the argument names the past-date check inspects.
var dateArgKeys = []string{"weddingDate", "startsAt", "date"}

func pastDateCheck(_ context.Context, d *Dispatcher, _ concierge.CallerContext, args argBag) ([]string, error) {
	var warnings []string
	now := d.now()
	for _, key := range dateArgKeys {
		t, err := args.timestamp(key)
		if err != nil || t == nil {
			continue
		}
		if t.Before(now) {
			warnings = append(warnings, fmt.Sprintf("%s %s is in the past", key, t.Format(time.DateOnly)))
		}
	}
	return warnings, nil
}

func duplicateGuestCheck(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, args argBag) ([]string, error) {
	clientID := args.str("clientId")
	firstName := args.str("firstName")
	if clientID == "" || firstName == "" {
		return nil, nil
	}
	fullName := normalizeName(firstName + " " + args.str("lastName"))
	email := strings.ToLower(args.str("email"))
	phone := normalizePhone(args.str("phone"))

	existing, err := store.ListGuests(ctx, d.db, caller.TenantID, clientID)
	if err != nil {
		return nil, err
	}
	for _, g := range existing {
		sameName := normalizeName(g.FullName()) == fullName
		sameEmail := email != "" && strings.ToLower(g.Email) == email
		samePhone := phone != "" && normalizePhone(g.Phone) == phone
		if sameName || sameEmail || samePhone {
			return []string{fmt.Sprintf("this guest looks like a duplicate of %s", g.FullName())}, nil
		}
	}
	return nil, nil
}

func duplicateVendorCheck(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, args argBag) ([]string, error) {
	name := args.str("name")
	if name == "" {
		return nil, nil
	}
	normalized := normalizeName(name)
	email := strings.ToLower(args.str("email"))
	phone := normalizePhone(args.str("phone"))

	existing, err := store.ListVendors(ctx, d.db, caller.TenantID)
	if err != nil {
		return nil, err
	}
	for _, v := range existing {
		sameName := normalizeName(v.Name) == normalized
		sameEmail := email != "" && strings.ToLower(v.Email) == email
		samePhone := phone != "" && normalizePhone(v.Phone) == phone
		if sameName || sameEmail || samePhone {
			return []string{fmt.Sprintf("this vendor looks like a duplicate of %s", v.Name)}, nil
		}
	}
	return nil, nil
}

func declinedSeatingCheck(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, args argBag) ([]string, error) {
	if strings.ToLower(args.str("status")) != store.RSVPDeclined {
		return nil, nil
	}
	clientID := args.str("clientId")
	if clientID == "" {
		return nil, nil
	}

	guest, err := findGuestForCheck(ctx, d, caller, clientID, args)
	if err != nil || guest == nil {
		// Resolution problems surface at execution time, not on preview.
		return nil, nil
	}
	if guest.TableNumber != nil {
		return []string{fmt.Sprintf("%s is seated at table %d; declining affects the seating chart", guest.FullName(), *guest.TableNumber)}, nil
	}
	return nil, nil
}

func budgetOverrunCheck(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, args argBag) ([]string, error) {
	amount, ok, err := args.number("amount")
	if err != nil || !ok {
		return nil, nil
	}
	return projectedOverrun(ctx, d, caller, args.str("clientId"), amount)
}

func budgetUpdateOverrunCheck(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, args argBag) ([]string, error) {
	amount, ok, err := args.number("amount")
	if err != nil || !ok {
		return nil, nil
	}
	clientID := args.str("clientId")
	if clientID == "" {
		return nil, nil
	}

	// Subtract the item's current amount when it can be identified, so the
	// projection reflects the delta rather than double-counting.
	delta := amount
	if itemID := args.str("itemId"); itemID != "" {
		item, err := store.GetBudgetItem(ctx, d.db, caller.TenantID, itemID)
		if err != nil {
			return nil, err
		}
		if item != nil {
			delta = amount - item.Amount
		}
	}
	return projectedOverrun(ctx, d, caller, clientID, delta)
}

func vendorCostOverrunCheck(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, args argBag) ([]string, error) {
	clientID := args.str("clientId")
	if clientID == "" {
		return nil, nil
	}
	var vendor *store.Vendor
	var err error
	if id := args.str("vendorId"); id != "" {
		vendor, err = store.GetVendor(ctx, d.db, caller.TenantID, id)
	} else if name := args.str("vendorName"); name != "" {
		matches, merr := store.VendorsByName(ctx, d.db, caller.TenantID, name)
		err = merr
		if len(matches) == 1 {
			vendor = &matches[0]
		}
	}
	if err != nil || vendor == nil || vendor.Cost <= 0 {
		return nil, err
	}
	return projectedOverrun(ctx, d, caller, clientID, vendor.Cost)
}

func projectedOverrun(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, clientID string, extra float64) ([]string, error) {
	if clientID == "" {
		return nil, nil
	}
	client, err := store.GetClient(ctx, d.db, caller.TenantID, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil || client.TotalBudget <= 0 {
		return nil, nil
	}
	spent, _, err := store.BudgetTotals(ctx, d.db, caller.TenantID, clientID)
	if err != nil {
		return nil, err
	}
	projected := spent + extra
	if projected > client.TotalBudget {
		return []string{fmt.Sprintf("projected spend %s exceeds the total budget of %s",
			formatMoney(projected), formatMoney(client.TotalBudget))}, nil
	}
	return nil, nil
}

func findGuestForCheck(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, clientID string, args argBag) (*store.Guest, error) {
	if id := args.str("guestId"); id != "" {
		return store.GetGuest(ctx, d.db, caller.TenantID, id)
	}
	if name := args.str("guestName"); name != "" {
		matches, err := store.GuestsByName(ctx, d.db, caller.TenantID, clientID, name)
		if err != nil {
			return nil, err
		}
		if len(matches) == 1 {
			return &matches[0], nil
		}
	}
	return nil, nil
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// normalizePhone keeps digits only so formatting differences do not defeat
// the duplicate check.
func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
