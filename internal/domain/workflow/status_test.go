package workflow

import (
	"errors"
	"testing"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusDraft, false},
		{StatusSubmitted, false},
		{StatusClassified, false},
		{StatusReturned, false},
		{StatusApproved, false},
		{StatusApprovedOnBehalf, false},
		{StatusInRegister, false},
		{StatusApprovedForPayment, false},
		{StatusPaidFull, true},
		{StatusPaidPartial, true},
		{StatusRejected, true},
		{StatusDeclined, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatus_Stage(t *testing.T) {
	if StatusReturned.Stage() <= StatusSubmitted.Stage() || StatusReturned.Stage() >= StatusClassified.Stage() {
		t.Errorf("returned stage %d should sit between submitted and classified", StatusReturned.Stage())
	}
	if StatusApproved.Stage() != StatusApprovedOnBehalf.Stage() {
		t.Error("approved and approved-on-behalf are siblings")
	}
	if StatusDeclined.Stage() != -1 {
		t.Errorf("declined stage = %d, want -1", StatusDeclined.Stage())
	}
	if Status("bogus").Stage() != -1 {
		t.Error("unknown status stage should be -1")
	}
}

func TestStatus_WireRoundTrip(t *testing.T) {
	all := AllStatuses()
	if len(all) != 13 {
		t.Fatalf("AllStatuses() returned %d statuses, want 13", len(all))
	}

	for _, s := range all {
		t.Run(s.String(), func(t *testing.T) {
			parsed, err := ParseStatus(s.String())
			if err != nil {
				t.Fatalf("ParseStatus(%q) failed: %v", s, err)
			}
			if parsed != s {
				t.Errorf("ParseStatus(%q) = %q", s, parsed)
			}

			fromKey, err := FromBackendKey(s.BackendKey())
			if err != nil {
				t.Fatalf("FromBackendKey(%q) failed: %v", s.BackendKey(), err)
			}
			if fromKey != s {
				t.Errorf("FromBackendKey(%q) = %q, want %q", s.BackendKey(), fromKey, s)
			}
		})
	}
}

func TestFromBackendKey_Aliases(t *testing.T) {
	tests := []struct {
		key  string
		want Status
	}{
		{"TO_PAY", StatusApprovedForPayment},
		{"registered", StatusClassified},
		{" IN_REGISTRY ", StatusInRegister},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := FromBackendKey(tt.key)
			if err != nil {
				t.Fatalf("FromBackendKey() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("FromBackendKey() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := FromBackendKey("PENDING"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("FromBackendKey(PENDING) error = %v, want %v", err, ErrInvalidState)
	}
}

func TestParseStatus_Invalid(t *testing.T) {
	for _, s := range []string{"", "to-pay", "DRAFT", "paid"} {
		if _, err := ParseStatus(s); !errors.Is(err, ErrInvalidState) {
			t.Errorf("ParseStatus(%q) error = %v, want %v", s, err, ErrInvalidState)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"executor", RoleExecutor, false},
		{"requester", RoleExecutor, false},
		{"Treasurer", RoleTreasurer, false},
		{"sub_registrar", RoleSubRegistrar, false},
		{"manager", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidationError(t *testing.T) {
	if !IsValidationError(ErrGuardFailed) {
		t.Error("ErrGuardFailed should be a validation error")
	}
	if IsValidationError(errors.New("connection reset")) {
		t.Error("arbitrary errors are not validation errors")
	}
}
