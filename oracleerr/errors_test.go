package oracleerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(KindCorruptedPrice, "symbol", "BTCUSDT", "source", "kucoin")
	wrapped := fmt.Errorf("validate: %w", base)
	if !errors.Is(wrapped, ErrCorruptedPrice) {
		t.Fatalf("expected errors.Is to match the kind")
	}
	if errors.Is(wrapped, ErrPriceTolerance) {
		t.Fatalf("different kinds must not match")
	}
	if KindOf(wrapped) != KindCorruptedPrice {
		t.Fatalf("unexpected kind %v", KindOf(wrapped))
	}
	if got, want := base.Error(), "Corrupted Price (source=kucoin, symbol=BTCUSDT)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestMarshalJSON(t *testing.T) {
	err := Wrap(KindUpstream, errors.New("dial tcp: refused"), "source", "mexc")
	raw, mErr := json.Marshal(err)
	if mErr != nil {
		t.Fatalf("marshal: %v", mErr)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["kind"] != "upstream" || decoded["message"] != "Upstream failure" {
		t.Fatalf("unexpected payload %s", raw)
	}
	if !errors.Is(err, err.Err) {
		t.Fatalf("cause should be reachable through Unwrap")
	}
}

func TestClasses(t *testing.T) {
	cases := map[Kind]Class{
		KindUnknownMethod:        ClassInput,
		KindIdenticalParties:     ClassInput,
		KindSingleSourceSymbol:   ClassIntegrity,
		KindLossTolerance:        ClassAgreement,
		KindSignatureNotVerified: ClassAgreement,
		KindUpstream:             ClassUpstream,
		KindSeedMismatch:         ClassAgreement,
		Kind(999):                ClassInternal,
	}
	for kind, want := range cases {
		if kind.Class() != want {
			t.Fatalf("%v: got class %v want %v", kind, kind.Class(), want)
		}
	}
	if As(errors.New("boom")).Kind != KindUnknown {
		t.Fatalf("foreign errors map to KindUnknown")
	}
}
