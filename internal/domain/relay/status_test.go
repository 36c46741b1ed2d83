package relay

import "testing"

func TestStatusTerminality(t *testing.T) {
	if StatusPending.Terminal() || StatusRetrying.Terminal() {
		t.Fatal("PENDING and RETRYING are not terminal")
	}
	if !StatusDelivered.Terminal() || !StatusDead.Terminal() {
		t.Fatal("DELIVERED and DEAD are terminal")
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to DeliveryStatus
		want     bool
	}{
		{StatusPending, StatusDelivered, true},
		{StatusPending, StatusRetrying, true},
		{StatusPending, StatusDead, true},
		{StatusRetrying, StatusRetrying, true},
		{StatusRetrying, StatusDelivered, true},
		{StatusRetrying, StatusDead, true},
		{StatusDelivered, StatusRetrying, false},
		{StatusDelivered, StatusDelivered, true},
		{StatusDead, StatusPending, false},
		{StatusDead, StatusDead, true},
		{StatusRetrying, StatusPending, false},
		{StatusDelivered, StatusDead, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusValidRejectsUnknown(t *testing.T) {
	if DeliveryStatus("FAILED").Valid() {
		t.Fatal("unknown status must be invalid")
	}
	if DeliveryStatus("FAILED").CanTransition(StatusDead) {
		t.Fatal("invalid states admit no transitions")
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("github"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	if err := ValidateName("   "); err == nil {
		t.Fatal("blank name must be rejected")
	}
	long := make([]byte, MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateName(string(long)); err == nil {
		t.Fatal("overlong name must be rejected")
	}
}

func TestValidateTargetURL(t *testing.T) {
	for _, ok := range []string{"https://example.com/hook", "http://10.0.0.5:8080/in"} {
		if err := ValidateTargetURL(ok); err != nil {
			t.Fatalf("valid url %s rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "ftp://example.com", "https://", "not a url\x7f"} {
		if err := ValidateTargetURL(bad); err == nil {
			t.Fatalf("invalid url %q accepted", bad)
		}
	}
}
