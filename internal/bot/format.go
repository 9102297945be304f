package bot

import (
	"fmt"
	"strconv"
	"strings"

	"kv_bot/internal/model"
)

// FormatSettings formats a subscriber's preferences for display.
func FormatSettings(sub model.Subscriber) string {
	var b strings.Builder
	b.WriteString("Your notification settings\n\n")
	fmt.Fprintf(&b, "Mode: %s\n", sub.Mode)
	fmt.Fprintf(&b, "Subscribed: %s\n", yesNo(sub.Subscribed))
	if sub.LastNotification != nil {
		fmt.Fprintf(&b, "Last notification: %s\n", sub.LastNotification.UTC().Format("2006-01-02 15:04 UTC"))
	} else {
		b.WriteString("Last notification: never\n")
	}

	b.WriteString("\nFilters:\n")
	b.WriteString(FormatFilters(sub.Filters))
	return b.String()
}

// FormatFilters lists the set filters in display order.
func FormatFilters(f model.Filters) string {
	if len(f) == 0 {
		return "  none, every listing matches\n"
	}
	var b strings.Builder
	for _, key := range model.FilterKeys {
		v, ok := f[key]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s\n", filterLabel(key), formatValue(v))
	}
	return b.String()
}

func filterLabel(key model.FilterKey) string {
	return strings.ReplaceAll(string(key), "_", " ")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
