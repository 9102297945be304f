package bot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"kv_bot/internal/model"
)

const setPrefix = "set_"

// filterCommand maps a /set_<key> command name to its filter key.
func filterCommand(cmd string) (model.FilterKey, bool) {
	name, ok := strings.CutPrefix(cmd, setPrefix)
	if !ok {
		return "", false
	}
	key, err := model.ParseFilterKey(name)
	if err != nil {
		return "", false
	}
	return key, true
}

// ParseFilterValue parses the numeric argument of a /set_<key> command.
// Spaces used as thousands separators and a decimal comma are accepted.
func ParseFilterValue(args string) (float64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("a value is required")
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "€"), "m²")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid number %q", strings.TrimSpace(args))
	}
	return v, nil
}

// ParseModeArg parses the argument of /mode.
func ParseModeArg(args string) (model.NotificationMode, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return "", fmt.Errorf("usage: /mode immediate|daily|weekly")
	}
	return model.ParseMode(strings.Fields(s)[0])
}

// ParseClearArgs parses the optional filter key of /clear_filters. An empty
// argument clears every filter and returns no keys.
func ParseClearArgs(args string) ([]model.FilterKey, error) {
	var keys []model.FilterKey
	for _, f := range strings.Fields(args) {
		key, err := model.ParseFilterKey(strings.TrimPrefix(f, setPrefix))
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
