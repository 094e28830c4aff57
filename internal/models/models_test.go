package models

import (
	"testing"
	"time"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBaseModelBeforeCreateKeepsExplicitID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID != "fixed" {
		t.Fatalf("expected explicit id to survive, got %q", base.ID)
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"wallet", func() *BaseModel {
			w := &Wallet{}
			return &w.BaseModel
		}},
		{"wallet_transaction", func() *BaseModel {
			tx := &WalletTransaction{}
			return &tx.BaseModel
		}},
		{"notification", func() *BaseModel {
			n := &Notification{}
			return &n.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			if err := base.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if base.ID == "" {
				t.Fatalf("expected %s id to be generated", tc.name)
			}
		})
	}
}

func TestUserBeforeCreateGeneratesID(t *testing.T) {
	u := &User{}
	if err := u.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected user id to be generated")
	}
}

func TestOnboardingProgressTableName(t *testing.T) {
	if got := (OnboardingProgress{}).TableName(); got != "onboarding_progress" {
		t.Fatalf("unexpected table name %q", got)
	}
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		entry   CacheEntry
		expired bool
	}{
		{"no expiry", CacheEntry{}, false},
		{"future", CacheEntry{ExpiresAt: now.Add(time.Second)}, false},
		{"boundary", CacheEntry{ExpiresAt: now}, true},
		{"past", CacheEntry{ExpiresAt: now.Add(-time.Minute)}, true},
	}
	for _, tc := range cases {
		if got := tc.entry.Expired(now); got != tc.expired {
			t.Errorf("%s: Expired() = %v, want %v", tc.name, got, tc.expired)
		}
	}
}
