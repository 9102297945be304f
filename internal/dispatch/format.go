package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"kv_bot/internal/model"
)

const descriptionLimit = 100

// FormatListing formats a listing as a plain-text notification message.
// Fields the source did not report are left out.
func FormatListing(l model.Listing) string {
	var b strings.Builder
	b.WriteString("New listing\n\n")
	fmt.Fprintf(&b, "Price: %s €\n", groupThousands(l.Price))
	if l.Rooms != nil {
		fmt.Fprintf(&b, "Rooms: %d\n", *l.Rooms)
	}
	if l.Area != nil {
		fmt.Fprintf(&b, "Area: %s m²\n", strconv.FormatFloat(*l.Area, 'f', -1, 64))
	}
	if l.Story != nil {
		fmt.Fprintf(&b, "Floor: %d\n", *l.Story)
	}
	if l.Condition != nil {
		fmt.Fprintf(&b, "Condition: %s\n", l.Condition)
	}
	if l.YearBuilt != nil {
		fmt.Fprintf(&b, "Year built: %d\n", *l.YearBuilt)
	}
	if l.EnergyLabel != "" {
		fmt.Fprintf(&b, "Energy label: %s\n", l.EnergyLabel)
	}
	if l.CostSummer != nil && l.CostWinter != nil {
		fmt.Fprintf(&b, "Costs summer/winter: %d € / %d €\n", *l.CostSummer, *l.CostWinter)
	}
	if l.Coordinates != nil {
		fmt.Fprintf(&b, "Map: https://maps.google.com/?q=%.6f,%.6f\n", l.Coordinates.Lat, l.Coordinates.Lon)
	}
	if l.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", truncate(l.Description, descriptionLimit))
	}
	if l.URL != "" {
		fmt.Fprintf(&b, "\n%s", l.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDigestHeader is the first message of a daily or weekly digest.
func FormatDigestHeader(mode model.NotificationMode, count int) string {
	period := "today"
	if mode == model.ModeWeekly {
		period = "this week"
	}
	noun := "listings"
	if count == 1 {
		noun = "listing"
	}
	return fmt.Sprintf("Your %s digest: %d new %s %s.", mode, count, noun, period)
}

func truncate(s string, limit int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	return strings.TrimSpace(string(r[:limit])) + "…"
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
