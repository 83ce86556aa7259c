package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := NotConnected()
	wrapped := fmt.Errorf("handling request: %w", base)

	if KindOf(wrapped) != KindNotConnected {
		t.Fatalf("kind through wrap = %v, want not-connected", KindOf(wrapped))
	}
	if !Is(wrapped, KindNotConnected) {
		t.Fatal("Is should see through wrapping")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors must classify as unknown")
	}
}

func TestCodeOf(t *testing.T) {
	err := Execution(10019, "insufficient funds")
	if CodeOf(err) != 10019 {
		t.Fatalf("code = %d, want 10019", CodeOf(err))
	}
	if CodeOf(Validation("bad input")) != 0 {
		t.Fatal("non-execution errors carry no code")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Connection("login failed", cause)

	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable via errors.Is")
	}
	msg := err.Error()
	if msg != "CONNECTION_ERROR: login failed: dial tcp: refused" {
		t.Fatalf("message = %q", msg)
	}
}
