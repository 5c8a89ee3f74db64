package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"testing"
)

func TestWrapPreservesCodeThroughFmtWrapping(t *testing.T) {
	cause := stdErrors.New("dial tcp: i/o timeout")
	err := fmt.Errorf("fetch nonce: %w", Wrap(CodeTransientNetwork, cause, "rpc unavailable"))

	if CodeOf(err) != CodeTransientNetwork {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if !RetryableError(err) {
		t.Fatalf("transient network errors must be retryable")
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("cause lost in chain")
	}
	if !stdErrors.Is(err, New(CodeTransientNetwork, "")) {
		t.Fatalf("errors.Is should match on code")
	}
}

func TestOverridesTakePrecedenceOverRegistry(t *testing.T) {
	err := New(CodeStorageFailure, "", WithRetryable(false), WithAlert(false), WithSeverity(SeverityInfo))
	if err.Retryable() || err.ShouldAlert() || err.Severity() != SeverityInfo {
		t.Fatalf("overrides ignored: %+v", err)
	}
	if err.Message() != "storage failure" {
		t.Fatalf("default message not applied: %q", err.Message())
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_CUSTOM_CODE"
	Register(code, Attributes{Message: "custom", Severity: SeverityCritical, Alert: true})

	err := New(code, "")
	if !err.ShouldAlert() || err.Severity() != SeverityCritical {
		t.Fatalf("registered attributes not applied")
	}
	found := false
	for _, c := range Registered() {
		if c == code {
			found = true
		}
	}
	if !found {
		t.Fatalf("code missing from registry listing")
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	if AttributesOf("NOPE") != AttributesOf(CodeUnknown) {
		t.Fatalf("unregistered code should fall back to UNKNOWN")
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors map to UNKNOWN")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "read: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryableClassifiesPlainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, true},
		{"plain", stdErrors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := RetryableError(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestAgentMetadata(t *testing.T) {
	err := fmt.Errorf("provision: %w", New(CodeNotFound, "missing", WithAgent("agent-7"), WithNetwork("base-mainnet")))
	if AgentOf(err) != "agent-7" {
		t.Fatalf("agent lost: %q", AgentOf(err))
	}
	e, _ := From(err)
	if e.Metadata()[MetaNetwork] != "base-mainnet" {
		t.Fatalf("network lost: %+v", e.Metadata())
	}
	if AgentOf(stdErrors.New("x")) != "" {
		t.Fatalf("plain errors carry no agent")
	}
}
