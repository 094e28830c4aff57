package validator

import (
	"strings"
	"testing"
)

type settingsPayload struct {
	Language   string   `json:"language" validate:"required,lang"`
	MutedTypes []string `json:"muted_types" validate:"max=2,dive,notification_type"`
	Internal   string   `json:"-" validate:"omitempty,max=3"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := settingsPayload{Language: "FR", MutedTypes: []string{"tips", "feature_intro"}}
	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	err := ValidateStruct(settingsPayload{
		Language:   "de",
		MutedTypes: []string{"Tips"},
		Internal:   "toolong",
	})
	failures, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	got := map[string]string{}
	for _, f := range failures {
		got[f.Field] = f.Tag
	}
	want := map[string]string{
		"language":       "lang",
		"muted_types[0]": "notification_type",
		"Internal":       "max",
	}
	for field, tag := range want {
		if got[field] != tag {
			t.Fatalf("expected %s to fail on %s, got %v", field, tag, got)
		}
	}
	if !strings.Contains(err.Error(), "language failed on lang") {
		t.Fatalf("unexpected message: %s", err)
	}
}

func TestValidateStructListLength(t *testing.T) {
	err := ValidateStruct(settingsPayload{Language: "en", MutedTypes: []string{"a", "b", "c"}})
	failures, ok := err.(ValidationErrors)
	if !ok || len(failures) != 1 || failures[0].Tag != "max" || failures[0].Param != "2" {
		t.Fatalf("expected a single max=2 failure, got %v", err)
	}
}

func TestValidateStructRejectsNonStruct(t *testing.T) {
	err := ValidateStruct("not a struct")
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(ValidationErrors); ok {
		t.Fatal("expected a plain error for invalid input")
	}
}

func TestIsNotificationType(t *testing.T) {
	for _, ok := range []string{"tips", "bonus_awarded", "a1"} {
		if !IsNotificationType(ok) {
			t.Errorf("expected %q to be accepted", ok)
		}
	}
	for _, bad := range []string{"", "Tips", "1tips", "tips-now", strings.Repeat("x", 65)} {
		if IsNotificationType(bad) {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
