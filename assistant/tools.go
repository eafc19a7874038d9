package assistant

import (
	"github.com/vowsuite/concierge/tools"
)

// ToolDefinition is one element of the planner request's tools array.
type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// parameterSchemas declares each tool's argument shape for the planner.
// These mirror the dispatcher's argument parsers; the dispatcher remains
// the authority and re-validates everything on arrival.
var parameterSchemas = map[tools.Name]map[string]any{
	tools.NameGetClient:        objectSchema(nil, "clientId", "clientName"),
	tools.NameListGuests:       objectSchema([]string{"clientId"}, "clientId"),
	tools.NameGetBudgetSummary: objectSchema([]string{"clientId"}, "clientId"),
	tools.NameGetTimeline:      objectSchema([]string{"clientId"}, "clientId"),
	tools.NameListVendors:      objectSchema(nil),
	tools.NameCreateClient:     objectSchema([]string{"name"}, "name", "email", "phone", "weddingDate", "totalBudget"),
	tools.NameAddGuest:         objectSchema([]string{"clientId", "firstName"}, "clientId", "firstName", "lastName", "email", "phone", "plusOnes"),
	tools.NameUpdateGuestRSVP:  objectSchema([]string{"clientId", "status"}, "clientId", "guestId", "guestName", "status"),
	tools.NameRemoveGuest:      objectSchema([]string{"clientId"}, "clientId", "guestId", "guestName"),
	tools.NameAddBudgetItem:    objectSchema([]string{"clientId", "category", "amount"}, "clientId", "category", "description", "amount"),
	tools.NameUpdateBudgetItem: objectSchema([]string{"clientId"}, "clientId", "itemId", "description", "amount", "paid", "category"),
	tools.NameAddTimelineItem:  objectSchema([]string{"clientId", "title", "startsAt"}, "clientId", "title", "startsAt", "endsAt", "durationMinutes", "location"),
	tools.NameShiftTimeline:    objectSchema([]string{"clientId", "shiftMinutes"}, "clientId", "shiftMinutes"),
	tools.NameAddVendor:        objectSchema([]string{"name"}, "name", "category", "email", "phone", "cost"),
	tools.NameBookVendor:       objectSchema([]string{"clientId"}, "clientId", "vendorId", "vendorName"),
	tools.NameExportGuestList:  objectSchema([]string{"clientId"}, "clientId"),
}

var numericArgs = map[string]bool{
	"totalBudget":     true,
	"plusOnes":        true,
	"amount":          true,
	"cost":            true,
	"shiftMinutes":    true,
	"durationMinutes": true,
}

var booleanArgs = map[string]bool{
	"paid": true,
}

func objectSchema(required []string, names ...string) map[string]any {
	properties := make(map[string]any, len(names))
	for _, name := range names {
		argType := "string"
		switch {
		case numericArgs[name]:
			argType = "number"
		case booleanArgs[name]:
			argType = "boolean"
		}
		properties[name] = map[string]any{"type": argType}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RegistryToolDefinitions maps every registered tool to a planner tool
// declaration.
func RegistryToolDefinitions() []ToolDefinition {
	all := tools.All()
	defs := make([]ToolDefinition, 0, len(all))
	for _, meta := range all {
		defs = append(defs, ToolDefinition{
			Type:        "function",
			Name:        string(meta.Name),
			Description: meta.ActionLabel,
			Parameters:  parameterSchemas[meta.Name],
		})
	}
	return defs
}
