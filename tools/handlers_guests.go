package tools

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

func requireClient(ctx context.Context, q store.Querier, tenantID, clientID string) (*store.Client, error) {
	client, err := store.GetClient(ctx, q, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, concierge.NotFound("client %s not found", clientID)
	}
	return client, nil
}

func handleAddGuest(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseAddGuestArgs(raw)
	if err != nil {
		return nil, err
	}

	guest := &store.Guest{
		ID:         d.newID(),
		TenantID:   caller.TenantID,
		ClientID:   args.ClientID,
		FirstName:  args.FirstName,
		LastName:   args.LastName,
		Email:      args.Email,
		Phone:      args.Phone,
		RSVPStatus: store.RSVPPending,
		PlusOnes:   args.PlusOnes,
		CreatedAt:  d.now(),
	}
	err = store.WithTx(ctx, d.db, d.txOpts, func(tx *sql.Tx) error {
		if _, err := requireClient(ctx, tx, caller.TenantID, args.ClientID); err != nil {
			return err
		}
		return store.InsertGuest(ctx, tx, guest)
	})
	if err != nil {
		return nil, err
	}

	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameAddGuest),
		Data:     guest,
		Message:  fmt.Sprintf("Added guest %s", guest.FullName()),
	}, nil
}

func handleUpdateGuestRSVP(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseUpdateGuestRSVPArgs(raw)
	if err != nil {
		return nil, err
	}

	var guest *store.Guest
	err = store.WithTx(ctx, d.db, d.txOpts, func(tx *sql.Tx) error {
		guest, err = resolveGuest(ctx, tx, caller.TenantID, args.ClientID, args.Ref)
		if err != nil {
			return err
		}
		ok, err := store.UpdateGuestRSVP(ctx, tx, caller.TenantID, guest.ID, args.Status)
		if err != nil {
			return err
		}
		if !ok {
			return concierge.NotFound("guest %s not found", guest.ID)
		}
		guest.RSVPStatus = args.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameUpdateGuestRSVP),
		Data:     guest,
		Message:  fmt.Sprintf("Set %s's RSVP to %s", guest.FullName(), args.Status),
	}, nil
}

func handleRemoveGuest(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseRemoveGuestArgs(raw)
	if err != nil {
		return nil, err
	}

	var guest *store.Guest
	err = store.WithTx(ctx, d.db, d.txOpts, func(tx *sql.Tx) error {
		guest, err = resolveGuest(ctx, tx, caller.TenantID, args.ClientID, args.Ref)
		if err != nil {
			return err
		}
		ok, err := store.DeleteGuest(ctx, tx, caller.TenantID, guest.ID)
		if err != nil {
			return err
		}
		if !ok {
			return concierge.NotFound("guest %s not found", guest.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameRemoveGuest),
		Data:     guest,
		Message:  fmt.Sprintf("Removed guest %s", guest.FullName()),
	}, nil
}
