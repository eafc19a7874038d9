// Package tools is the dispatcher for tool calls proposed by the upstream
// planner model: it looks up tool metadata, renders a human-readable
// preview with cascade effects and warnings, decides whether the call needs
// user confirmation, and executes confirmed or confirmation-exempt calls
// transactionally, broadcasting cache invalidations afterwards.
package tools

import (
	"github.com/vowsuite/concierge"
)

// Name identifies one tool. Dispatch is by exact name; there is no pattern
// fallback.
type Name string

const (
	NameGetClient        Name = "get_client"
	NameListGuests       Name = "list_guests"
	NameGetBudgetSummary Name = "get_budget_summary"
	NameGetTimeline      Name = "get_timeline"
	NameListVendors      Name = "list_vendors"

	NameCreateClient     Name = "create_client"
	NameAddGuest         Name = "add_guest"
	NameUpdateGuestRSVP  Name = "update_guest_rsvp"
	NameRemoveGuest      Name = "remove_guest"
	NameAddBudgetItem    Name = "add_budget_item"
	NameUpdateBudgetItem Name = "update_budget_item"
	NameAddTimelineItem  Name = "add_timeline_item"
	NameShiftTimeline    Name = "shift_timeline"
	NameAddVendor        Name = "add_vendor"
	NameBookVendor       Name = "book_vendor"

	// NameExportGuestList is registered for discovery but has no handler
	// wired yet; dispatching it fails with NotImplemented.
	NameExportGuestList Name = "export_guest_list"
)

// Kind separates read-only tools from mutating ones. Confirmation is only
// ever required for mutations.
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// Metadata is the static registry entry for one tool. Loaded once at
// process start and never mutated.
type Metadata struct {
	Name        Name
	Kind        Kind
	ActionLabel string
	// Description is a template rendered against the call's arguments;
	// {field} placeholders are replaced with formatted values.
	Description string
	// Module names the entity collection the tool touches; used on sync
	// actions so clients know which store to invalidate.
	Module string
	// SyncType is the change kind broadcast after a successful mutation.
	SyncType concierge.ActionType
	// CascadeEffects are shown on previews so the user knows what else
	// the mutation will touch.
	CascadeEffects []string
	// ConfirmExempt opts a mutation out of the confirmation flow. Off by
	// default: every mutation requires confirmation unless exempted here.
	ConfirmExempt bool
}

// RequiresConfirmation implements the confirmation rule: queries never
// confirm, mutations confirm unless explicitly exempted.
func (m Metadata) RequiresConfirmation() bool {
	return m.Kind == KindMutation && !m.ConfirmExempt
}

var registry = map[Name]Metadata{
	NameGetClient: {
		Name: NameGetClient, Kind: KindQuery,
		ActionLabel: "Look up client",
		Description: "Look up client {clientName}",
		Module:      "clients",
	},
	NameListGuests: {
		Name: NameListGuests, Kind: KindQuery,
		ActionLabel: "List guests",
		Description: "List the guest list",
		Module:      "guests",
	},
	NameGetBudgetSummary: {
		Name: NameGetBudgetSummary, Kind: KindQuery,
		ActionLabel: "Budget summary",
		Description: "Summarize the budget",
		Module:      "budget",
	},
	NameGetTimeline: {
		Name: NameGetTimeline, Kind: KindQuery,
		ActionLabel: "Show timeline",
		Description: "Show the wedding-day timeline",
		Module:      "timeline",
	},
	NameListVendors: {
		Name: NameListVendors, Kind: KindQuery,
		ActionLabel: "List vendors",
		Description: "List vendors",
		Module:      "vendors",
	},

	NameCreateClient: {
		Name: NameCreateClient, Kind: KindMutation,
		ActionLabel: "Create client",
		Description: "Create client {name}",
		Module:      "clients",
		SyncType:    concierge.ActionInsert,
		CascadeEffects: []string{
			"A default Wedding Day event is created",
			"Standard budget categories are seeded",
		},
	},
	NameAddGuest: {
		Name: NameAddGuest, Kind: KindMutation,
		ActionLabel: "Add guest",
		Description: "Add guest {firstName} to the guest list",
		Module:      "guests",
		SyncType:    concierge.ActionInsert,
	},
	NameUpdateGuestRSVP: {
		Name: NameUpdateGuestRSVP, Kind: KindMutation,
		ActionLabel: "Update RSVP",
		Description: "Set RSVP for {guestName} to {status}",
		Module:      "guests",
		SyncType:    concierge.ActionUpdate,
	},
	NameRemoveGuest: {
		Name: NameRemoveGuest, Kind: KindMutation,
		ActionLabel: "Remove guest",
		Description: "Remove guest {guestName} from the guest list",
		Module:      "guests",
		SyncType:    concierge.ActionDelete,
	},
	NameAddBudgetItem: {
		Name: NameAddBudgetItem, Kind: KindMutation,
		ActionLabel: "Add budget item",
		Description: "Add {category} budget item of {amount}",
		Module:      "budget",
		SyncType:    concierge.ActionInsert,
	},
	NameUpdateBudgetItem: {
		Name: NameUpdateBudgetItem, Kind: KindMutation,
		ActionLabel: "Update budget item",
		Description: "Update budget item {itemId}",
		Module:      "budget",
		SyncType:    concierge.ActionUpdate,
	},
	NameAddTimelineItem: {
		Name: NameAddTimelineItem, Kind: KindMutation,
		ActionLabel: "Add timeline item",
		Description: "Add {title} to the timeline",
		Module:      "timeline",
		SyncType:    concierge.ActionInsert,
	},
	NameShiftTimeline: {
		Name: NameShiftTimeline, Kind: KindMutation,
		ActionLabel: "Shift timeline",
		Description: "Shift the timeline by {shiftMinutes} minutes",
		Module:      "timeline",
		SyncType:    concierge.ActionUpdate,
	},
	NameAddVendor: {
		Name: NameAddVendor, Kind: KindMutation,
		ActionLabel: "Add vendor",
		Description: "Add vendor {name}",
		Module:      "vendors",
		SyncType:    concierge.ActionInsert,
	},
	NameBookVendor: {
		Name: NameBookVendor, Kind: KindMutation,
		ActionLabel: "Book vendor",
		Description: "Book vendor {vendorName}",
		Module:      "vendors",
		SyncType:    concierge.ActionUpdate,
		CascadeEffects: []string{
			"A budget item is added for the vendor's cost",
		},
	},

	NameExportGuestList: {
		Name: NameExportGuestList, Kind: KindQuery,
		ActionLabel: "Export guest list",
		Description: "Export the guest list",
		Module:      "guests",
	},
}

// Lookup returns the registry entry for a tool name.
func Lookup(name Name) (Metadata, bool) {
	meta, ok := registry[name]
	return meta, ok
}

// All returns every registered tool's metadata. The slice is a copy.
func All() []Metadata {
	out := make([]Metadata, 0, len(registry))
	for _, meta := range registry {
		out = append(out, meta)
	}
	return out
}
