package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var moneyFragments = []string{"cost", "budget", "amount", "price"}

// moneyField reports whether an argument name denotes a monetary value.
func moneyField(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range moneyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// formatMoney renders 12345.5 as "$12,345.50".
func formatMoney(v float64) string {
	neg := v < 0
	v = math.Abs(v)

	whole := int64(v)
	cents := int64(math.Round((v - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := strconv.FormatInt(whole, 10)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%02d", sign, grouped.String(), cents)
}

// displayValue renders an argument for the preview: booleans as Yes/No,
// money-like numbers with currency grouping, arrays comma-joined, objects
// as JSON, everything else as plain text.
func displayValue(name string, v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case bool:
		if value {
			return "Yes"
		}
		return "No"
	case string:
		return value
	case float64:
		if moneyField(name) {
			return formatMoney(value)
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return displayValue(name, float64(value))
	case int:
		return displayValue(name, float64(value))
	case int64:
		return displayValue(name, float64(value))
	case json.Number:
		if f, err := value.Float64(); err == nil {
			return displayValue(name, f)
		}
		return value.String()
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, displayValue(name, item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(value, ", ")
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(encoded)
	}
}

// renderTemplate substitutes {field} placeholders with formatted argument
// values; unresolved placeholders are left untouched.
func renderTemplate(tpl string, args map[string]any) string {
	out := tpl
	for key, value := range args {
		placeholder := "{" + key + "}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, displayValue(key, value))
		}
	}
	return out
}
