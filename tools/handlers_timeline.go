package tools

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

func handleAddTimelineItem(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseAddTimelineItemArgs(raw)
	if err != nil {
		return nil, err
	}

	item := &store.TimelineItem{
		ID:        d.newID(),
		TenantID:  caller.TenantID,
		ClientID:  args.ClientID,
		Title:     args.Title,
		StartsAt:  args.StartsAt,
		EndsAt:    args.EndsAt,
		Location:  args.Location,
		CreatedAt: d.now(),
	}
	err = store.WithTx(ctx, d.db, d.txOpts, func(tx *sql.Tx) error {
		if _, err := requireClient(ctx, tx, caller.TenantID, args.ClientID); err != nil {
			return err
		}
		return store.InsertTimelineItem(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}

	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameAddTimelineItem),
		Data:     item,
		Message:  fmt.Sprintf("Scheduled %s at %s", item.Title, item.StartsAt.Format("Jan 2 3:04 PM")),
	}, nil
}

func handleShiftTimeline(ctx context.Context, d *Dispatcher, caller concierge.CallerContext, raw argBag) (*concierge.ToolExecutionResult, error) {
	args, err := parseShiftTimelineArgs(raw)
	if err != nil {
		return nil, err
	}

	delta := time.Duration(args.ShiftMinutes) * time.Minute
	var shifted int
	err = store.WithTx(ctx, d.db, d.txOpts, func(tx *sql.Tx) error {
		if _, err := requireClient(ctx, tx, caller.TenantID, args.ClientID); err != nil {
			return err
		}
		shifted, err = store.ShiftTimeline(ctx, tx, caller.TenantID, args.ClientID, delta)
		return err
	})
	if err != nil {
		return nil, err
	}

	direction := "later"
	minutes := args.ShiftMinutes
	if minutes < 0 {
		direction = "earlier"
		minutes = -minutes
	}
	return &concierge.ToolExecutionResult{
		Success:  true,
		ToolName: string(NameShiftTimeline),
		Data:     map[string]any{"shiftedCount": shifted},
		Message:  fmt.Sprintf("Shifted %d timeline items %d minutes %s", shifted, minutes, direction),
	}, nil
}
