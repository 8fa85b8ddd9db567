package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// RoomError Tests
// -----------------------------------------------------------------------------

func TestNewRoomError(t *testing.T) {
	cause := ErrRoomNotFound
	err := NewRoomError("failed to load room", cause)

	if err.message != "failed to load room" {
		t.Errorf("message = %q, want %q", err.message, "failed to load room")
	}
	if err.cause != cause {
		t.Errorf("cause = %v, want %v", err.cause, cause)
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestRoomError_WithMethods(t *testing.T) {
	err := NewRoomError("test", nil).
		WithRoomID("room-123").
		WithSeverity(SeverityCritical).
		WithRetryable(true)

	if err.RoomID != "room-123" {
		t.Errorf("RoomID = %q, want %q", err.RoomID, "room-123")
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true")
	}
}

func TestRoomError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RoomError
		want string
	}{
		{
			name: "basic error",
			err:  NewRoomError("test error", nil),
			want: "room error: test error",
		},
		{
			name: "with cause",
			err:  NewRoomError("test error", ErrRoomNotFound),
			want: "room error: test error: room not found",
		},
		{
			name: "with room ID",
			err:  NewRoomError("test error", nil).WithRoomID("abc123"),
			want: "room error [room=abc123]: test error",
		},
		{
			name: "with room ID and cause",
			err:  NewRoomError("test error", ErrRoomClosed).WithRoomID("xyz"),
			want: "room error [room=xyz]: test error: room is closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoomError_Is(t *testing.T) {
	err := NewRoomError("test", ErrRoomNotFound).WithRoomID("abc")

	if !Is(err, &RoomError{}) {
		t.Error("Is(RoomError{}) = false, want true")
	}
	if !Is(err, ErrRoomNotFound) {
		t.Error("Is(ErrRoomNotFound) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// AgentError Tests
// -----------------------------------------------------------------------------

func TestAgentKind_String(t *testing.T) {
	tests := []struct {
		kind AgentKind
		want string
	}{
		{AgentKindTransient, "transient"},
		{AgentKindPermanent, "permanent"},
		{AgentKindTimeout, "timeout"},
		{AgentKindCanceled, "canceled"},
		{AgentKindPolicyBlocked, "policy_blocked"},
		{AgentKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("AgentKind.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewAgentError_RetryableByKind(t *testing.T) {
	tests := []struct {
		kind          AgentKind
		wantRetryable bool
	}{
		{AgentKindTransient, true},
		{AgentKindTimeout, true},
		{AgentKindPermanent, false},
		{AgentKindCanceled, false},
		{AgentKindPolicyBlocked, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := NewAgentError("think failed", nil, tt.kind)
			if err.IsRetryable() != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v", err.IsRetryable(), tt.wantRetryable)
			}
		})
	}
}

func TestAgentError_Error(t *testing.T) {
	err := NewAgentError("think call failed", ErrAgentCommunication, AgentKindTransient).
		WithAgentID("critic")

	want := "agent error [agent=critic, kind=transient]: think call failed: agent backend communication failed"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAgentError_Is(t *testing.T) {
	err := NewAgentError("test", ErrAgentThinkTimeout, AgentKindTimeout)
	if !Is(err, &AgentError{}) {
		t.Error("Is(AgentError{}) = false, want true")
	}
	if !Is(err, ErrAgentThinkTimeout) {
		t.Error("Is(ErrAgentThinkTimeout) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// DecisionError Tests
// -----------------------------------------------------------------------------

func TestDecisionError_Error(t *testing.T) {
	err := NewDecisionError("scoring pass failed", ErrSVRDeadlineExceeded).
		WithRoomID("room-1").
		WithRoundIndex(3)

	want := "decision error [room=room-1, round=3]: scoring pass failed: svr computation deadline exceeded"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDecisionError_RoundIndexDefaultOmitted(t *testing.T) {
	err := NewDecisionError("no tuples", ErrNoTuples)
	want := "decision error: no tuples: no SVR tuples to decide over"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// TransportError Tests
// -----------------------------------------------------------------------------

func TestTransportError_Error(t *testing.T) {
	err := NewTransportError("failed to deliver envelope", ErrSendQueueFull).
		WithConnectionID("conn-1").
		WithRoomID("room-1")

	want := "transport error [conn=conn-1, room=room-1]: failed to deliver envelope: send queue full"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransportError_DefaultNotUserFacing(t *testing.T) {
	err := NewTransportError("dropped", ErrConnectionClosed)
	if err.IsUserFacing() {
		t.Error("IsUserFacing() = true, want false (transport details are internal)")
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("room", "abc123")
	want := "room 'abc123' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsUserFacing(err) {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestAlreadyExistsError(t *testing.T) {
	err := NewAlreadyExistsError("room", "abc123")
	want := "room 'abc123' already exists"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("agent id cannot be empty").WithField("agentID").WithValue("")
	want := "validation error [field=agentID, value=]: agent id cannot be empty"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("waiting for agent response", 30*time.Second)
	want := "timeout error: waiting for agent response (timeout: 30s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !err.IsRetryable() {
		t.Error("TimeoutError should default to retryable")
	}
	if !Is(err, ErrTimeout) {
		t.Error("TimeoutError should match ErrTimeout")
	}
}

// -----------------------------------------------------------------------------
// Classification Helper Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true, want false")
	}
	if !IsRetryable(NewAgentError("x", nil, AgentKindTransient)) {
		t.Error("transient AgentError should be retryable")
	}
	if IsRetryable(NewAgentError("x", nil, AgentKindPermanent)) {
		t.Error("permanent AgentError should not be retryable")
	}
	if !IsRetryable(fmt.Errorf("wrap: %w", ErrTimeout)) {
		t.Error("wrapped ErrTimeout should be retryable")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true, want false")
	}
	if !IsUserFacing(NewRoomError("x", nil)) {
		t.Error("RoomError should default to user-facing")
	}
	if IsUserFacing(NewTransportError("x", nil)) {
		t.Error("TransportError should default to not user-facing")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want %v", got, SeverityDebug)
	}
	if got := GetSeverity(NewRoomError("x", nil).WithSeverity(SeverityCritical)); got != SeverityCritical {
		t.Errorf("GetSeverity() = %v, want %v", got, SeverityCritical)
	}
	if got := GetSeverity(errors.New("plain")); got != SeverityError {
		t.Errorf("GetSeverity(plain error) = %v, want %v", got, SeverityError)
	}
}

func TestIsDomainError(t *testing.T) {
	if !IsDomainError(NewRoomError("x", nil)) {
		t.Error("RoomError should be a domain error")
	}
	if !IsDomainError(NewAgentError("x", nil, AgentKindPermanent)) {
		t.Error("AgentError should be a domain error")
	}
	if !IsDomainError(NewDecisionError("x", nil)) {
		t.Error("DecisionError should be a domain error")
	}
	if !IsDomainError(NewTransportError("x", nil)) {
		t.Error("TransportError should be a domain error")
	}
	if IsDomainError(NewNotFoundError("room", "x")) {
		t.Error("NotFoundError is semantic, not domain")
	}
}

func TestIsSemanticError(t *testing.T) {
	if !IsSemanticError(NewNotFoundError("room", "x")) {
		t.Error("NotFoundError should be semantic")
	}
	if !IsSemanticError(NewAlreadyExistsError("room", "x")) {
		t.Error("AlreadyExistsError should be semantic")
	}
	if !IsSemanticError(NewValidationError("x")) {
		t.Error("ValidationError should be semantic")
	}
	if !IsSemanticError(NewTimeoutError("x", time.Second)) {
		t.Error("TimeoutError should be semantic")
	}
	if IsSemanticError(NewRoomError("x", nil)) {
		t.Error("RoomError is domain-specific, not semantic")
	}
}

// -----------------------------------------------------------------------------
// Wrap / Wrapf Tests
// -----------------------------------------------------------------------------

func TestWrap(t *testing.T) {
	base := ErrRoomNotFound
	wrapped := Wrap(base, "failed to process request")

	want := "failed to process request: room not found"
	if got := wrapped.Error(); got != want {
		t.Errorf("Wrap() = %q, want %q", got, want)
	}
	if !Is(wrapped, base) {
		t.Error("Wrap() should preserve Is() matching against the base error")
	}
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil, ...) should return nil")
	}
}

func TestWrapf(t *testing.T) {
	base := ErrAgentNotFound
	wrapped := Wrapf(base, "failed to process room %s", "abc123")

	want := "failed to process room abc123: agent not found"
	if got := wrapped.Error(); got != want {
		t.Errorf("Wrapf() = %q, want %q", got, want)
	}
	if Wrapf(nil, "x %s", "y") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
}
