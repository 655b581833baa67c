package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := AlreadyClaimed("Chain Master")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected AlreadyClaimed to match sentinel")
	}
	if errors.Is(err, ErrMetadataNotSet) {
		t.Fatalf("unexpected match across codes")
	}

	wrapped := fmt.Errorf("claim: %w", err)
	if !errors.Is(wrapped, ErrAlreadyClaimed) {
		t.Fatalf("expected match through wrapping")
	}
	if CodeOf(wrapped) != CodeAlreadyClaimed {
		t.Fatalf("expected code %s, got %s", CodeAlreadyClaimed, CodeOf(wrapped))
	}
}

func TestKindTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{ErrUnauthorized, KindUnauthorized},
		{ErrChallengeNotFound, KindNotFound},
		{ErrResponseNotFound, KindNotFound},
		{ErrEmptyChallenge, KindInvalidInput},
		{ErrParentChallengeMismatch, KindInvalidInput},
		{ErrInsufficientBalance, KindInsufficientBalance},
		{ErrLimitTooHigh, KindLimitTooHigh},
		{RequirementNotMet("Icebreaker", 10, 9), KindRequirementNotMet},
		{SourceNotConfigured("roast"), KindSourceNotConfigured},
		{errors.New("plain"), KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Errorf("%v: expected kind %s, got %s", tc.err, tc.kind, got)
		}
	}
}

func TestRequirementNotMetMetadata(t *testing.T) {
	err := RequirementNotMet("Chain Master", 5, 4)
	if err.Metadata["required"] != "5" || err.Metadata["actual"] != "4" {
		t.Fatalf("unexpected metadata: %v", err.Metadata)
	}
	if err.Metadata["badge"] != "Chain Master" {
		t.Fatalf("unexpected badge: %s", err.Metadata["badge"])
	}
}
