package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vowsuite/concierge"
)

// Argument structs are parsed and validated once at the dispatch boundary;
// handlers never cast fields out of the raw argument bag themselves.

type argBag map[string]any

func (a argBag) str(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}

func (a argBag) requireStr(key string) (string, error) {
	s := a.str(key)
	if s == "" {
		return "", concierge.BadRequest("%s is required", key)
	}
	return s, nil
}

// number accepts float64 (JSON default), integers, json.Number and numeric
// strings, since upstream models are loose about numeric encoding.
func (a argBag) number(key string) (float64, bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, concierge.BadRequest("%s must be a number", key)
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false, concierge.BadRequest("%s must be a number", key)
		}
		return f, true, nil
	default:
		return 0, false, concierge.BadRequest("%s must be a number", key)
	}
}

func (a argBag) requireNumber(key string) (float64, error) {
	n, ok, err := a.number(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, concierge.BadRequest("%s is required", key)
	}
	return n, nil
}

func (a argBag) boolean(key string) (bool, bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return false, false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, true, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false, concierge.BadRequest("%s must be a boolean", key)
		}
		return parsed, true, nil
	default:
		return false, false, concierge.BadRequest("%s must be a boolean", key)
	}
}

// timestamp accepts RFC3339 or a bare date.
func (a argBag) timestamp(key string) (*time.Time, error) {
	s := a.str(key)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, concierge.BadRequest("%s must be an RFC3339 timestamp or YYYY-MM-DD date", key)
}

func (a argBag) requireTimestamp(key string) (time.Time, error) {
	t, err := a.timestamp(key)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, concierge.BadRequest("%s is required", key)
	}
	return *t, nil
}

type getClientArgs struct {
	ClientID   string
	ClientName string
}

func parseGetClientArgs(raw argBag) (getClientArgs, error) {
	args := getClientArgs{ClientID: raw.str("clientId"), ClientName: raw.str("clientName")}
	if args.ClientID == "" && args.ClientName == "" {
		return args, concierge.BadRequest("clientId or clientName is required")
	}
	return args, nil
}

type createClientArgs struct {
	Name        string
	Email       string
	Phone       string
	WeddingDate *time.Time
	TotalBudget float64
}

func parseCreateClientArgs(raw argBag) (createClientArgs, error) {
	name, err := raw.requireStr("name")
	if err != nil {
		return createClientArgs{}, err
	}
	weddingDate, err := raw.timestamp("weddingDate")
	if err != nil {
		return createClientArgs{}, err
	}
	budget, _, err := raw.number("totalBudget")
	if err != nil {
		return createClientArgs{}, err
	}
	return createClientArgs{
		Name:        name,
		Email:       raw.str("email"),
		Phone:       raw.str("phone"),
		WeddingDate: weddingDate,
		TotalBudget: budget,
	}, nil
}

type addGuestArgs struct {
	ClientID  string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	PlusOnes  int
}

func parseAddGuestArgs(raw argBag) (addGuestArgs, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return addGuestArgs{}, err
	}
	firstName, err := raw.requireStr("firstName")
	if err != nil {
		return addGuestArgs{}, err
	}
	plusOnes, _, err := raw.number("plusOnes")
	if err != nil {
		return addGuestArgs{}, err
	}
	return addGuestArgs{
		ClientID:  clientID,
		FirstName: firstName,
		LastName:  raw.str("lastName"),
		Email:     raw.str("email"),
		Phone:     raw.str("phone"),
		PlusOnes:  int(plusOnes),
	}, nil
}

// guestRef identifies a guest either by id or by free-text name.
type guestRef struct {
	GuestID   string
	GuestName string
}

func parseGuestRef(raw argBag) (guestRef, error) {
	ref := guestRef{GuestID: raw.str("guestId"), GuestName: raw.str("guestName")}
	if ref.GuestID == "" && ref.GuestName == "" {
		return ref, concierge.BadRequest("guestId or guestName is required")
	}
	return ref, nil
}

type updateGuestRSVPArgs struct {
	ClientID string
	Ref      guestRef
	Status   string
}

func parseUpdateGuestRSVPArgs(raw argBag) (updateGuestRSVPArgs, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return updateGuestRSVPArgs{}, err
	}
	ref, err := parseGuestRef(raw)
	if err != nil {
		return updateGuestRSVPArgs{}, err
	}
	status := strings.ToLower(raw.str("status"))
	switch status {
	case "accepted", "declined", "pending":
	case "":
		return updateGuestRSVPArgs{}, concierge.BadRequest("status is required")
	default:
		return updateGuestRSVPArgs{}, concierge.BadRequest("status must be accepted, declined or pending")
	}
	return updateGuestRSVPArgs{ClientID: clientID, Ref: ref, Status: status}, nil
}

type removeGuestArgs struct {
	ClientID string
	Ref      guestRef
}

func parseRemoveGuestArgs(raw argBag) (removeGuestArgs, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return removeGuestArgs{}, err
	}
	ref, err := parseGuestRef(raw)
	if err != nil {
		return removeGuestArgs{}, err
	}
	return removeGuestArgs{ClientID: clientID, Ref: ref}, nil
}

type addBudgetItemArgs struct {
	ClientID    string
	Category    string
	Description string
	Amount      float64
}

func parseAddBudgetItemArgs(raw argBag) (addBudgetItemArgs, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return addBudgetItemArgs{}, err
	}
	category, err := raw.requireStr("category")
	if err != nil {
		return addBudgetItemArgs{}, err
	}
	amount, err := raw.requireNumber("amount")
	if err != nil {
		return addBudgetItemArgs{}, err
	}
	if amount < 0 {
		return addBudgetItemArgs{}, concierge.BadRequest("amount must not be negative")
	}
	return addBudgetItemArgs{
		ClientID:    clientID,
		Category:    category,
		Description: raw.str("description"),
		Amount:      amount,
	}, nil
}

type updateBudgetItemArgs struct {
	ClientID    string
	ItemID      string
	Description string // free-text reference when ItemID is empty
	Amount      *float64
	Paid        *bool
	Category    string
}

func parseUpdateBudgetItemArgs(raw argBag) (updateBudgetItemArgs, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return updateBudgetItemArgs{}, err
	}
	args := updateBudgetItemArgs{
		ClientID:    clientID,
		ItemID:      raw.str("itemId"),
		Description: raw.str("description"),
		Category:    raw.str("category"),
	}
	if args.ItemID == "" && args.Description == "" {
		return updateBudgetItemArgs{}, concierge.BadRequest("itemId or description is required")
	}
	if amount, ok, err := raw.number("amount"); err != nil {
		return updateBudgetItemArgs{}, err
	} else if ok {
		if amount < 0 {
			return updateBudgetItemArgs{}, concierge.BadRequest("amount must not be negative")
		}
		args.Amount = &amount
	}
	if paid, ok, err := raw.boolean("paid"); err != nil {
		return updateBudgetItemArgs{}, err
	} else if ok {
		args.Paid = &paid
	}
	return args, nil
}

type addTimelineItemArgs struct {
	ClientID string
	Title    string
	StartsAt time.Time
	EndsAt   time.Time
	Location string
}

func parseAddTimelineItemArgs(raw argBag) (addTimelineItemArgs, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return addTimelineItemArgs{}, err
	}
	title, err := raw.requireStr("title")
	if err != nil {
		return addTimelineItemArgs{}, err
	}
	startsAt, err := raw.requireTimestamp("startsAt")
	if err != nil {
		return addTimelineItemArgs{}, err
	}
	endsAt, err := raw.timestamp("endsAt")
	if err != nil {
		return addTimelineItemArgs{}, err
	}
	args := addTimelineItemArgs{
		ClientID: clientID,
		Title:    title,
		StartsAt: startsAt,
		Location: raw.str("location"),
	}
	if endsAt != nil {
		args.EndsAt = *endsAt
	} else {
		minutes, ok, err := raw.number("durationMinutes")
		if err != nil {
			return addTimelineItemArgs{}, err
		}
		if !ok {
			minutes = 60
		}
		args.EndsAt = startsAt.Add(time.Duration(minutes) * time.Minute)
	}
	if !args.EndsAt.After(args.StartsAt) {
		return addTimelineItemArgs{}, concierge.BadRequest("endsAt must be after startsAt")
	}
	return args, nil
}

type shiftTimelineArgs struct {
	ClientID     string
	ShiftMinutes int
}

func parseShiftTimelineArgs(raw argBag) (shiftTimelineArgs, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return shiftTimelineArgs{}, err
	}
	minutes, err := raw.requireNumber("shiftMinutes")
	if err != nil {
		return shiftTimelineArgs{}, err
	}
	// Truncate first so fractional values below one minute are rejected
	// instead of becoming a no-op shift.
	shift := int(minutes)
	if shift == 0 {
		return shiftTimelineArgs{}, concierge.BadRequest("shiftMinutes must not be zero")
	}
	return shiftTimelineArgs{ClientID: clientID, ShiftMinutes: shift}, nil
}

type addVendorArgs struct {
	Name     string
	Category string
	Email    string
	Phone    string
	Cost     float64
}

func parseAddVendorArgs(raw argBag) (addVendorArgs, error) {
	name, err := raw.requireStr("name")
	if err != nil {
		return addVendorArgs{}, err
	}
	cost, _, err := raw.number("cost")
	if err != nil {
		return addVendorArgs{}, err
	}
	return addVendorArgs{
		Name:     name,
		Category: raw.str("category"),
		Email:    raw.str("email"),
		Phone:    raw.str("phone"),
		Cost:     cost,
	}, nil
}

type bookVendorArgs struct {
	ClientID   string
	VendorID   string
	VendorName string
}

func parseBookVendorArgs(raw argBag) (bookVendorArgs, error) {
	clientID, err := raw.requireStr("clientId")
	if err != nil {
		return bookVendorArgs{}, err
	}
	args := bookVendorArgs{
		ClientID:   clientID,
		VendorID:   raw.str("vendorId"),
		VendorName: raw.str("vendorName"),
	}
	if args.VendorID == "" && args.VendorName == "" {
		return bookVendorArgs{}, concierge.BadRequest("vendorId or vendorName is required")
	}
	return args, nil
}
