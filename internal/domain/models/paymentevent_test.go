package models

import "testing"

func TestPaymentEvent_NeedsReview(t *testing.T) {
	tests := []struct {
		status  PaymentStatus
		outcome MatchOutcome
		want    bool
	}{
		{PaymentCompleted, MatchNone, true},
		{PaymentCompleted, MatchUnknownPayer, true},
		{PaymentCompleted, MatchProcessingFailed, true},
		{PaymentCompleted, MatchContribution, false},
		{PaymentCompleted, MatchRepayment, false},
		{PaymentCompleted, "", false},
		{PaymentTimeout, MatchLateSuccess, true},
		{PaymentTimeout, MatchFailed, false},
		{PaymentInitiated, MatchProcessingFailed, false},
	}

	for _, tt := range tests {
		e := PaymentEvent{Status: tt.status, Outcome: tt.outcome}
		if got := e.NeedsReview(); got != tt.want {
			t.Errorf("NeedsReview(%s, %q) = %v, want %v", tt.status, tt.outcome, got, tt.want)
		}
	}
}
