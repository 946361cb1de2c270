package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestReplyLiterals(t *testing.T) {
	cases := map[Code]string{
		CodeBadMessage:         "Something went wrong",
		CodeNotManagerEstimate: "Only manager can finalize estimate",
		CodeEstimationFailed:   "Estimation failed",
		CodeCantSkip:           "Can't skip",
		CodeCantStartTimer:     "Can't start timer",
		CodeInvalidEstimate:    "Invalid estimate",
		Code("whatever"):       "Something went wrong",
	}
	for code, want := range cases {
		if got := code.Reply(); got != want {
			t.Fatalf("%s: got %q, want %q", code, got, want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	cause := errors.New("disk on fire")
	err := fmt.Errorf("handler: %w", Wrap(CodeEstimationFailed, "persist estimate", cause))

	if got := CodeOf(err); got != CodeEstimationFailed {
		t.Fatalf("got %s", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost from chain")
	}
	if !errors.Is(err, New(CodeEstimationFailed, "")) {
		t.Fatalf("code match failed")
	}
	if got := CodeOf(errors.New("plain")); got != CodeBadMessage {
		t.Fatalf("plain error: got %s", got)
	}
}
