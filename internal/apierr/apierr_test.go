package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	if KindOf(Broker("oops")) != KindBroker {
		t.Fatal("expected broker kind")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("unclassified errors should report internal")
	}
}

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("placing order: %w", NotFound("unknown broker %q", "upstox"))
	if !errors.Is(err, &Error{Kind: KindNotFound}) {
		t.Fatal("wrapped not-found should match by kind")
	}
	if errors.Is(err, &Error{Kind: KindAuth}) {
		t.Fatal("kinds must not cross-match")
	}
}

func TestBroker_PreservesMessage(t *testing.T) {
	msg := "RMS:Margin Exceeds, Required:2,00,000"
	err := Broker(msg)
	if err.Message != msg {
		t.Fatalf("broker message must pass through verbatim, got %q", err.Message)
	}
}
