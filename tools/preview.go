package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/vowsuite/concierge"
)

// GeneratePreview builds the human-readable rendering of what a call will
// do: one field per non-null argument, the tool's description template,
// its declared cascade effects, and any warnings the tool-specific checks
// raise. Previews are built fresh per call and only persisted as part of a
// pending call.
func (d *Dispatcher) GeneratePreview(ctx context.Context, name Name, args map[string]any, caller concierge.CallerContext) (*concierge.ToolPreview, error) {
	meta, ok := Lookup(name)
	if !ok {
		return nil, concierge.UnknownTool(string(name))
	}

	preview := &concierge.ToolPreview{
		ToolName:             string(name),
		ActionLabel:          meta.ActionLabel,
		Description:          describe(meta, args),
		Fields:               previewFields(args),
		CascadeEffects:       meta.CascadeEffects,
		Warnings:             d.runWarningChecks(ctx, meta, caller, argBag(args)),
		RequiresConfirmation: meta.RequiresConfirmation(),
	}
	return preview, nil
}

func describe(meta Metadata, args map[string]any) string {
	if meta.Description != "" {
		return renderTemplate(meta.Description, args)
	}
	return fmt.Sprintf("Execute %s", meta.Name)
}

// previewFields renders every non-null argument, sorted by name so the
// output is deterministic.
func previewFields(args map[string]any) []concierge.PreviewField {
	names := make([]string, 0, len(args))
	for name, value := range args {
		if value == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]concierge.PreviewField, 0, len(names))
	for _, name := range names {
		fields = append(fields, concierge.PreviewField{
			Name:         name,
			Value:        args[name],
			DisplayValue: displayValue(name, args[name]),
		})
	}
	return fields
}
