package tools

// queryPaths maps a tool to the cached query identifiers its mutation
// invalidates. Initialized once; read through QueryPathsFor only, so it
// behaves as immutable static configuration.
var queryPaths = map[Name][]string{
	NameCreateClient:     {"clients.list", "clients.detail", "budget.summary", "timeline.list"},
	NameAddGuest:         {"guests.list", "guests.count"},
	NameUpdateGuestRSVP:  {"guests.list", "guests.count", "seating.chart"},
	NameRemoveGuest:      {"guests.list", "guests.count", "seating.chart"},
	NameAddBudgetItem:    {"budget.items", "budget.summary"},
	NameUpdateBudgetItem: {"budget.items", "budget.summary"},
	NameAddTimelineItem:  {"timeline.list"},
	NameShiftTimeline:    {"timeline.list"},
	NameAddVendor:        {"vendors.list"},
	NameBookVendor:       {"vendors.list", "budget.items", "budget.summary"},
}

// QueryPathsFor returns the cache keys invalidated by a tool. A tool absent
// from the table broadcasts an empty list. The returned slice is a copy.
func QueryPathsFor(name Name) []string {
	paths, ok := queryPaths[name]
	if !ok {
		return nil
	}
	out := make([]string, len(paths))
	copy(out, paths)
	return out
}
