package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		label  string
		want   Condition
		wantOK bool
	}{
		{label: "Renoveeritud", want: ConditionRenovated, wantOK: true},
		{label: " heas korras ", want: ConditionGood, wantOK: true},
		{label: "Vajab san. remonti", want: ConditionNeedsSanitaryRepair, wantOK: true},
		{label: "Uusarendus", want: ConditionNewDevelopment, wantOK: true},
		{label: "Valmis", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := ParseCondition(tt.label)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseCondition(%q) = %v, %v; want %v, %v", tt.label, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestConditionString(t *testing.T) {
	if diff := cmp.Diff("renovated", ConditionRenovated.String()); diff != "" {
		t.Errorf("String mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("condition(42)", Condition(42).String()); diff != "" {
		t.Errorf("String mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDealAndPropertyType(t *testing.T) {
	if d, err := ParseDealType("Sale"); err != nil || d != DealSale {
		t.Errorf("ParseDealType(Sale) = %v, %v", d, err)
	}
	if d, err := ParseDealType("rent"); err != nil || d != DealRent {
		t.Errorf("ParseDealType(rent) = %v, %v", d, err)
	}
	if _, err := ParseDealType("lease"); err == nil {
		t.Error("expected error for unknown deal type")
	}

	if p, err := ParsePropertyType(""); err != nil || p != 0 {
		t.Errorf("ParsePropertyType(\"\") = %v, %v; want any", p, err)
	}
	if p, err := ParsePropertyType("row_house"); err != nil || p != PropertyRowHouse {
		t.Errorf("ParsePropertyType(row_house) = %v, %v", p, err)
	}
	if _, err := ParsePropertyType("castle"); err == nil {
		t.Error("expected error for unknown property type")
	}
}

func TestParseModeAndFilterKey(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %q, %v", m, got, err)
		}
	}
	if _, err := ParseMode("monthly"); err == nil {
		t.Error("expected error for unknown mode")
	}

	for _, k := range FilterKeys {
		got, err := ParseFilterKey(string(k))
		if err != nil || got != k {
			t.Errorf("ParseFilterKey(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseFilterKey("county"); err == nil {
		t.Error("expected error for unknown filter key")
	}
}

func TestNewSubscriber(t *testing.T) {
	want := Subscriber{ChatID: 7, Mode: ModeImmediate, Filters: Filters{}, Subscribed: true}
	if diff := cmp.Diff(want, NewSubscriber(7)); diff != "" {
		t.Errorf("NewSubscriber mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscriberCloneIsIndependent(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	orig := Subscriber{
		ChatID:           1,
		Mode:             ModeDaily,
		Filters:          Filters{PriceMax: 100000},
		Subscribed:       true,
		LastNotification: &at,
	}

	c := orig.Clone()
	c.Filters[PriceMax] = 1
	*c.LastNotification = at.Add(time.Hour)

	if orig.Filters[PriceMax] != 100000 {
		t.Errorf("clone shares filters: %v", orig.Filters)
	}
	if !orig.LastNotification.Equal(at) {
		t.Errorf("clone shares last notification: %v", orig.LastNotification)
	}
}
