// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Coordinates is a WGS84 position of a listing.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Listing is one real-estate posting. Identity is ID: two records with the
// same ID are the same listing even if other fields differ.
type Listing struct {
	ID          int64
	URL         string
	Price       int
	Rooms       *int
	Area        *float64
	YearBuilt   *int
	Condition   *Condition
	Story       *int
	EnergyLabel string
	CostSummer  *int
	CostWinter  *int
	Coordinates *Coordinates
	Description string
}

// Condition is the state of repair reported by the listings portal.
type Condition int

// Known conditions, in the portal's numbering.
const (
	ConditionNeedsRenovation Condition = iota + 1
	ConditionNeedsSanitaryRepair
	ConditionConnected
	ConditionSanitaryRepairDone
	ConditionRenovated
	ConditionGood
	ConditionNew
	ConditionNewDevelopment
)

var conditionLabels = map[string]Condition{
	"vajab renoveerimist": ConditionNeedsRenovation,
	"vajab san. remonti":  ConditionNeedsSanitaryRepair,
	"ühendatud":           ConditionConnected,
	"san. remont tehtud":  ConditionSanitaryRepairDone,
	"renoveeritud":        ConditionRenovated,
	"heas korras":         ConditionGood,
	"uus":                 ConditionNew,
	"uusarendus":          ConditionNewDevelopment,
}

// ParseCondition maps a portal condition label to a Condition.
func ParseCondition(label string) (Condition, bool) {
	c, ok := conditionLabels[strings.ToLower(strings.TrimSpace(label))]
	return c, ok
}

func (c Condition) String() string {
	switch c {
	case ConditionNeedsRenovation:
		return "needs renovation"
	case ConditionNeedsSanitaryRepair:
		return "needs sanitary repair"
	case ConditionConnected:
		return "connected"
	case ConditionSanitaryRepairDone:
		return "sanitary repair done"
	case ConditionRenovated:
		return "renovated"
	case ConditionGood:
		return "good condition"
	case ConditionNew:
		return "new"
	case ConditionNewDevelopment:
		return "new development"
	}
	return fmt.Sprintf("condition(%d)", int(c))
}

// DealType is the kind of transaction searched for.
type DealType int

// Deal types, in the portal's numbering.
const (
	DealRent DealType = 2
	DealSale DealType = 3
)

// ParseDealType parses "sale" or "rent".
func ParseDealType(s string) (DealType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sale":
		return DealSale, nil
	case "rent":
		return DealRent, nil
	}
	return 0, fmt.Errorf("unknown deal type %q", s)
}

// PropertyType narrows a search to one kind of property.
type PropertyType int

// Property types, in the portal's numbering. Zero means any.
const (
	PropertyApartment PropertyType = iota + 1
	PropertyHouse
	PropertyRowHouse
	PropertyCommercial
	PropertyLand
)

// ParsePropertyType parses a property type name. The empty string is any type.
func ParsePropertyType(s string) (PropertyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "apartment":
		return PropertyApartment, nil
	case "house":
		return PropertyHouse, nil
	case "row_house":
		return PropertyRowHouse, nil
	case "commercial":
		return PropertyCommercial, nil
	case "land":
		return PropertyLand, nil
	}
	return 0, fmt.Errorf("unknown property type %q", s)
}

// NotificationMode selects the cadence a subscriber is notified on.
type NotificationMode string

// Supported notification modes.
const (
	ModeImmediate NotificationMode = "immediate"
	ModeDaily     NotificationMode = "daily"
	ModeWeekly    NotificationMode = "weekly"
)

// Modes lists all notification modes in cadence order.
var Modes = []NotificationMode{ModeImmediate, ModeDaily, ModeWeekly}

// ParseMode parses a notification mode name.
func ParseMode(s string) (NotificationMode, error) {
	m := NotificationMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeImmediate, ModeDaily, ModeWeekly:
		return m, nil
	}
	return "", fmt.Errorf("unknown notification mode %q", s)
}

// FilterKey names one inclusive bound of a subscriber filter.
type FilterKey string

// Supported filter keys.
const (
	PriceMin FilterKey = "price_min"
	PriceMax FilterKey = "price_max"
	AreaMin  FilterKey = "area_min"
	AreaMax  FilterKey = "area_max"
	RoomsMin FilterKey = "rooms_min"
	RoomsMax FilterKey = "rooms_max"
)

// FilterKeys lists all filter keys in display order.
var FilterKeys = []FilterKey{PriceMin, PriceMax, AreaMin, AreaMax, RoomsMin, RoomsMax}

// ParseFilterKey validates a filter key name.
func ParseFilterKey(s string) (FilterKey, error) {
	k := FilterKey(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range FilterKeys {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Filters maps filter keys to threshold values. An empty map matches every listing.
type Filters map[FilterKey]float64

// Clone returns an independent copy of f.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Subscriber holds the notification preferences of one chat.
type Subscriber struct {
	ChatID           int64
	Mode             NotificationMode
	Filters          Filters
	Subscribed       bool
	LastNotification *time.Time
}

// NewSubscriber returns the default record created on first interaction.
func NewSubscriber(chatID int64) Subscriber {
	return Subscriber{
		ChatID:     chatID,
		Mode:       ModeImmediate,
		Filters:    Filters{},
		Subscribed: true,
	}
}

// Clone returns a copy of s that shares no mutable state with it.
func (s Subscriber) Clone() Subscriber {
	out := s
	out.Filters = s.Filters.Clone()
	if s.LastNotification != nil {
		t := *s.LastNotification
		out.LastNotification = &t
	}
	return out
}
