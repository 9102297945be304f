// Package filter implements the listing matching engine.
package filter

import (
	"fmt"

	"kv_bot/internal/model"
)

// Match checks whether a listing passes the given filters.
// If no filters are provided, the listing always passes.
// Every bound is inclusive and evaluated on its own; the listing must pass all of them.
// A listing field that is unknown never violates a bound on that field.
func Match(l model.Listing, filters model.Filters) bool {
	for key, limit := range filters {
		value, ok := fieldFor(l, key)
		if !ok {
			continue
		}
		switch key {
		case model.PriceMin, model.AreaMin, model.RoomsMin:
			if value < limit {
				return false
			}
		case model.PriceMax, model.AreaMax, model.RoomsMax:
			if value > limit {
				return false
			}
		}
	}
	return true
}

// Apply returns the listings that pass filters, preserving order.
func Apply(listings []model.Listing, filters model.Filters) []model.Listing {
	var matched []model.Listing
	for _, l := range listings {
		if Match(l, filters) {
			matched = append(matched, l)
		}
	}
	return matched
}

func fieldFor(l model.Listing, key model.FilterKey) (float64, bool) {
	switch key {
	case model.PriceMin, model.PriceMax:
		return float64(l.Price), true
	case model.AreaMin, model.AreaMax:
		if l.Area == nil {
			return 0, false
		}
		return *l.Area, true
	case model.RoomsMin, model.RoomsMax:
		if l.Rooms == nil {
			return 0, false
		}
		return float64(*l.Rooms), true
	}
	return 0, false
}

// Validate checks a new bound against the filters it would be merged into.
func Validate(filters model.Filters, key model.FilterKey, value float64) error {
	if value < 0 {
		return fmt.Errorf("%s must not be negative", key)
	}
	switch key {
	case model.PriceMin, model.AreaMin, model.RoomsMin:
		if hi, ok := filters[upperOf(key)]; ok && value > hi {
			return fmt.Errorf("%s %g is above %s %g", key, value, upperOf(key), hi)
		}
	case model.PriceMax, model.AreaMax, model.RoomsMax:
		if lo, ok := filters[lowerOf(key)]; ok && value < lo {
			return fmt.Errorf("%s %g is below %s %g", key, value, lowerOf(key), lo)
		}
	}
	return nil
}

func upperOf(key model.FilterKey) model.FilterKey {
	switch key {
	case model.PriceMin:
		return model.PriceMax
	case model.AreaMin:
		return model.AreaMax
	case model.RoomsMin:
		return model.RoomsMax
	}
	return key
}

func lowerOf(key model.FilterKey) model.FilterKey {
	switch key {
	case model.PriceMax:
		return model.PriceMin
	case model.AreaMax:
		return model.AreaMin
	case model.RoomsMax:
		return model.RoomsMin
	}
	return key
}
