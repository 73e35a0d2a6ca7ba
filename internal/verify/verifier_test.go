package verify

import (
	"context"
	"testing"

	"github.com/opensource-finance/kite/internal/domain"
)

// recordingResponder wraps a MapResponder and records which fields were
// requested, in order.
type recordingResponder struct {
	inner  MapResponder
	fields []domain.ChallengeField
}

func (r *recordingResponder) Respond(ctx context.Context, field domain.ChallengeField) (string, error) {
	r.fields = append(r.fields, field)
	return r.inner.Respond(ctx, field)
}

func correctAnswers() map[domain.ChallengeField]string {
	creds := domain.SimCredentials()
	return map[domain.ChallengeField]string{
		domain.FieldSurname:      creds.Surname,
		domain.FieldDateOfBirth:  creds.DateOfBirth,
		domain.FieldSecurityCode: creds.SecurityCode,
		domain.FieldPIN:          creds.PIN,
		domain.FieldFactorChoice: "1",
	}
}

func TestSelectTier(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		score  float64
		want   domain.VerificationTier
	}{
		{"below both triggers", 1000.0, 0.49, domain.TierNone},
		{"amount just over trigger", 1000.01, 0.0, domain.TierPINOnly},
		{"score at trigger", 50.0, 0.50, domain.TierPINOnly},
		{"partial by amount", 2000.01, 0.0, domain.TierPartial},
		{"partial by score", 50.0, 0.70, domain.TierPartial},
		{"full by amount", 5000.01, 0.0, domain.TierFull},
		{"full by score", 50.0, 0.90, domain.TierFull},
		{"full wins over partial", 6000.0, 0.75, domain.TierFull},
		{"amount at partial boundary stays pin tier", 2000.0, 0.0, domain.TierPINOnly},
		{"amount at full boundary stays partial", 5000.0, 0.0, domain.TierPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectTier(tt.amount, tt.score); got != tt.want {
				t.Errorf("SelectTier(%.2f, %.2f) = %q, want %q", tt.amount, tt.score, got, tt.want)
			}
		})
	}
}

func TestRunTierNoneVacuousPass(t *testing.T) {
	v := New(domain.SimCredentials())

	// Responder with no answers must never be consulted
	out := v.Run(context.Background(), domain.TierNone, &MapResponder{})
	if !out.Passed {
		t.Error("expected vacuous pass for TierNone")
	}
}

func TestRunPINOnly(t *testing.T) {
	v := New(domain.SimCredentials())
	ctx := context.Background()

	out := v.Run(ctx, domain.TierPINOnly, &MapResponder{Answers: correctAnswers()})
	if !out.Passed {
		t.Fatalf("expected pass, failed at %q", out.FailedField)
	}

	wrong := correctAnswers()
	wrong[domain.FieldPIN] = "0000"
	out = v.Run(ctx, domain.TierPINOnly, &MapResponder{Answers: wrong})
	if out.Passed {
		t.Fatal("expected failure for wrong PIN")
	}
	if out.FailedField != domain.FieldPIN {
		t.Errorf("expected failed field pin, got %q", out.FailedField)
	}
}

func TestRunFullSequenceAndOrder(t *testing.T) {
	v := New(domain.SimCredentials())

	r := &recordingResponder{inner: MapResponder{Answers: correctAnswers()}}
	out := v.Run(context.Background(), domain.TierFull, r)
	if !out.Passed {
		t.Fatalf("expected pass, failed at %q", out.FailedField)
	}

	wantOrder := []domain.ChallengeField{
		domain.FieldSurname,
		domain.FieldDateOfBirth,
		domain.FieldSecurityCode,
		domain.FieldPIN,
	}
	if len(r.fields) != len(wantOrder) {
		t.Fatalf("expected %d challenges, got %d", len(wantOrder), len(r.fields))
	}
	for i, f := range wantOrder {
		if r.fields[i] != f {
			t.Errorf("challenge %d: expected %q, got %q", i, f, r.fields[i])
		}
	}
}

func TestRunFullShortCircuits(t *testing.T) {
	v := New(domain.SimCredentials())

	answers := correctAnswers()
	answers[domain.FieldDateOfBirth] = "2001-01-01"

	r := &recordingResponder{inner: MapResponder{Answers: answers}}
	out := v.Run(context.Background(), domain.TierFull, r)

	if out.Passed {
		t.Fatal("expected failure for wrong date of birth")
	}
	if out.FailedField != domain.FieldDateOfBirth {
		t.Errorf("expected failed field dob, got %q", out.FailedField)
	}
	// surname then dob, nothing after the miss
	if len(r.fields) != 2 {
		t.Errorf("expected 2 challenges before short-circuit, got %d", len(r.fields))
	}
}

func TestRunFullSurnameCaseInsensitive(t *testing.T) {
	v := New(domain.SimCredentials())

	answers := correctAnswers()
	answers[domain.FieldSurname] = "  wahdan "

	out := v.Run(context.Background(), domain.TierFull, &MapResponder{Answers: answers})
	if !out.Passed {
		t.Errorf("expected surname match to ignore case and whitespace, failed at %q", out.FailedField)
	}
}

func TestRunPartialFactorChoices(t *testing.T) {
	v := New(domain.SimCredentials())
	ctx := context.Background()

	for choice, field := range map[string]domain.ChallengeField{
		"1": domain.FieldSurname,
		"2": domain.FieldDateOfBirth,
		"3": domain.FieldSecurityCode,
	} {
		answers := correctAnswers()
		answers[domain.FieldFactorChoice] = choice

		r := &recordingResponder{inner: MapResponder{Answers: answers}}
		out := v.Run(ctx, domain.TierPartial, r)
		if !out.Passed {
			t.Errorf("choice %s: expected pass, failed at %q", choice, out.FailedField)
		}

		// pin, factorChoice, then the selected factor
		if len(r.fields) != 3 || r.fields[2] != field {
			t.Errorf("choice %s: expected final challenge %q, got %v", choice, field, r.fields)
		}
	}
}

func TestRunPartialInvalidChoiceFails(t *testing.T) {
	v := New(domain.SimCredentials())

	answers := correctAnswers()
	answers[domain.FieldFactorChoice] = "9"

	out := v.Run(context.Background(), domain.TierPartial, &MapResponder{Answers: answers})
	if out.Passed {
		t.Fatal("expected failure for invalid factor selection")
	}
	if out.FailedField != domain.FieldFactorChoice {
		t.Errorf("expected failed field factorChoice, got %q", out.FailedField)
	}
}

func TestRunResponderErrorIsFailure(t *testing.T) {
	v := New(domain.SimCredentials())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := v.Run(ctx, domain.TierPINOnly, &MapResponder{Answers: correctAnswers()})
	if out.Passed {
		t.Fatal("expected failure when responder context is cancelled")
	}
	if out.Err == nil {
		t.Error("expected responder error recorded on outcome")
	}
}

func TestRunMissingAnswerIsFailure(t *testing.T) {
	v := New(domain.SimCredentials())

	out := v.Run(context.Background(), domain.TierPINOnly, &MapResponder{Answers: map[domain.ChallengeField]string{}})
	if out.Passed {
		t.Fatal("expected failure when responder has no answer")
	}
	if out.Err == nil {
		t.Error("expected missing-answer error recorded on outcome")
	}
}
