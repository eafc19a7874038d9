package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vowsuite/concierge"
)

func TestPreviewAddGuest(t *testing.T) {
	d, _, _ := newTestEnv(t)

	preview, err := d.GeneratePreview(context.Background(), NameAddGuest, map[string]any{
		"firstName": "Noah",
		"clientId":  "client-1",
		"lastName":  "Reed",
		"email":     nil,
	}, testCaller)
	require.NoError(t, err)

	require.True(t, preview.RequiresConfirmation)
	require.Equal(t, "Add guest", preview.ActionLabel)
	require.Equal(t, "Add guest Noah to the guest list", preview.Description)

	// Null arguments are dropped and the rest render sorted by name.
	names := make([]string, 0, len(preview.Fields))
	for _, f := range preview.Fields {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"clientId", "firstName", "lastName"}, names)
}

func TestPreviewQueriesNeverConfirm(t *testing.T) {
	d, _, _ := newTestEnv(t)

	for _, meta := range All() {
		if meta.Kind != KindQuery {
			continue
		}
		preview, err := d.GeneratePreview(context.Background(), meta.Name, map[string]any{}, testCaller)
		require.NoError(t, err)
		require.False(t, preview.RequiresConfirmation, "query %s must not require confirmation", meta.Name)
	}
}

func TestPreviewMutationsConfirmByDefault(t *testing.T) {
	for _, meta := range All() {
		if meta.Kind != KindMutation || meta.ConfirmExempt {
			continue
		}
		require.True(t, meta.RequiresConfirmation(), "mutation %s must require confirmation", meta.Name)
	}
}

func TestPreviewUnknownTool(t *testing.T) {
	d, _, _ := newTestEnv(t)
	_, err := d.GeneratePreview(context.Background(), Name("reticulate_splines"), nil, testCaller)
	require.Equal(t, concierge.CodeUnknownTool, concierge.CodeOf(err))
}

func TestPreviewMoneyDisplay(t *testing.T) {
	d, _, _ := newTestEnv(t)

	preview, err := d.GeneratePreview(context.Background(), NameAddBudgetItem, map[string]any{
		"clientId":    "client-1",
		"category":    "catering",
		"description": "Plated dinner",
		"amount":      12345.5,
	}, testCaller)
	require.NoError(t, err)

	var amount *concierge.PreviewField
	for i := range preview.Fields {
		if preview.Fields[i].Name == "amount" {
			amount = &preview.Fields[i]
		}
	}
	require.NotNil(t, amount)
	require.Equal(t, "$12,345.50", amount.DisplayValue)
}

func TestPreviewBoolDisplay(t *testing.T) {
	require.Equal(t, "Yes", displayValue("paid", true))
	require.Equal(t, "No", displayValue("paid", false))
}

func TestPreviewCascadeEffects(t *testing.T) {
	d, _, _ := newTestEnv(t)

	preview, err := d.GeneratePreview(context.Background(), NameBookVendor, map[string]any{
		"clientId":   "client-1",
		"vendorName": "Petal & Stem",
	}, testCaller)
	require.NoError(t, err)
	require.Equal(t, []string{"A budget item is added for the vendor's cost"}, preview.CascadeEffects)
}

func TestFormatMoney(t *testing.T) {
	cases := map[float64]string{
		0:        "$0.00",
		42:       "$42.00",
		999.9:    "$999.90",
		1000:     "$1,000.00",
		12345.5:  "$12,345.50",
		-2500.75: "-$2,500.75",
	}
	for in, want := range cases {
		require.Equal(t, want, formatMoney(in))
	}
}
