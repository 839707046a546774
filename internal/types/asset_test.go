package types

import (
	"testing"

	"github.com/google/uuid"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AssetStatus
		want     bool
	}{
		{StatusProcessing, StatusExtractingKeyframes, true},
		{StatusExtractingKeyframes, StatusIndexingVectors, true},
		{StatusIndexingVectors, StatusReady, true},
		{StatusProcessing, StatusError, true},
		{StatusExtractingKeyframes, StatusError, true},
		{StatusIndexingVectors, StatusError, true},
		{StatusReady, StatusError, true},

		// restart / at-least-once re-entry
		{StatusReady, StatusExtractingKeyframes, true},
		{StatusExtractingKeyframes, StatusExtractingKeyframes, true},
		{StatusIndexingVectors, StatusExtractingKeyframes, true},

		// illegal jumps
		{StatusProcessing, StatusIndexingVectors, false},
		{StatusProcessing, StatusReady, false},
		{StatusExtractingKeyframes, StatusReady, false},
		{StatusError, StatusExtractingKeyframes, false},
		{StatusError, StatusReady, false},
		{StatusReady, StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s): want=%v got=%v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if !StatusError.Terminal() {
		t.Fatalf("error status must be terminal")
	}
	for _, s := range []AssetStatus{StatusProcessing, StatusExtractingKeyframes, StatusIndexingVectors, StatusReady} {
		if s.Terminal() {
			t.Fatalf("status %s must not be terminal", s)
		}
	}
}

func TestAssetVisibleTo(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	public := &Asset{OwnerID: owner, IsPublic: true, Visibility: VisibilityPublic}
	private := &Asset{OwnerID: owner, IsPublic: false, Visibility: VisibilityPrivate}
	restricted := &Asset{OwnerID: owner, IsPublic: true, Visibility: VisibilityRestricted}

	if !public.VisibleTo(nil) {
		t.Fatalf("public asset must be visible to anonymous callers")
	}
	if private.VisibleTo(nil) || restricted.VisibleTo(nil) {
		t.Fatalf("non-public assets must be hidden from anonymous callers")
	}
	if !private.VisibleTo(&owner) || !restricted.VisibleTo(&owner) {
		t.Fatalf("owners must see their own assets")
	}
	if private.VisibleTo(&other) {
		t.Fatalf("private asset must be hidden from non-owners")
	}
}
