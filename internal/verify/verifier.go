package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/opensource-finance/kite/internal/domain"
)

// Outcome is the result of one verification run.
type Outcome struct {
	Tier   domain.VerificationTier `json:"tier"`
	Passed bool                    `json:"passed"`

	// FailedField names the challenge that ended the run, empty on a pass.
	FailedField domain.ChallengeField `json:"failedField,omitempty"`

	// Err is set when the responder itself failed (timeout, cancellation,
	// transport error). Responder failure always means the run failed.
	Err error `json:"-"`
}

// Verifier runs tiered challenge sequences against reference credentials.
type Verifier struct {
	creds domain.Credentials
}

// New returns a verifier checking against the given reference credentials.
func New(creds domain.Credentials) *Verifier {
	return &Verifier{creds: creds}
}

// Run executes the challenge sequence for a tier. Challenges short-circuit:
// the first wrong answer or responder error ends the run as a failure and no
// later field is requested. TierNone passes vacuously without consulting the
// responder.
func (v *Verifier) Run(ctx context.Context, tier domain.VerificationTier, r domain.ChallengeResponder) Outcome {
	out := Outcome{Tier: tier}

	switch tier {
	case domain.TierNone:
		out.Passed = true
		return out

	case domain.TierPINOnly:
		return v.challenge(ctx, out, r, domain.FieldPIN)

	case domain.TierPartial:
		out = v.challenge(ctx, out, r, domain.FieldPIN)
		if !out.Passed {
			return out
		}
		return v.partialFactor(ctx, out, r)

	case domain.TierFull:
		for _, field := range []domain.ChallengeField{
			domain.FieldSurname,
			domain.FieldDateOfBirth,
			domain.FieldSecurityCode,
			domain.FieldPIN,
		} {
			out = v.challenge(ctx, out, r, field)
			if !out.Passed {
				return out
			}
		}
		return out

	default:
		out.FailedField = domain.ChallengeField(tier)
		out.Err = fmt.Errorf("unknown verification tier %q", tier)
		return out
	}
}

// partialFactor asks the responder to pick one identity factor and then
// challenges that factor. An out-of-range selection fails the run.
func (v *Verifier) partialFactor(ctx context.Context, out Outcome, r domain.ChallengeResponder) Outcome {
	out.Passed = false

	choice, err := r.Respond(ctx, domain.FieldFactorChoice)
	if err != nil {
		out.FailedField = domain.FieldFactorChoice
		out.Err = err
		return out
	}

	var field domain.ChallengeField
	switch strings.TrimSpace(choice) {
	case "1":
		field = domain.FieldSurname
	case "2":
		field = domain.FieldDateOfBirth
	case "3":
		field = domain.FieldSecurityCode
	default:
		out.FailedField = domain.FieldFactorChoice
		return out
	}

	return v.challenge(ctx, out, r, field)
}

// challenge asks for one field and checks it. On success out.Passed is true;
// on any miss or responder error out carries the failed field.
func (v *Verifier) challenge(ctx context.Context, out Outcome, r domain.ChallengeResponder, field domain.ChallengeField) Outcome {
	out.Passed = false

	answer, err := r.Respond(ctx, field)
	if err != nil {
		out.FailedField = field
		out.Err = err
		return out
	}

	if !v.check(field, answer) {
		out.FailedField = field
		return out
	}

	out.Passed = true
	return out
}

func (v *Verifier) check(field domain.ChallengeField, answer string) bool {
	answer = strings.TrimSpace(answer)
	switch field {
	case domain.FieldSurname:
		return strings.EqualFold(answer, v.creds.Surname)
	case domain.FieldDateOfBirth:
		return answer == v.creds.DateOfBirth
	case domain.FieldSecurityCode:
		return answer == v.creds.SecurityCode
	case domain.FieldPIN:
		return answer == v.creds.PIN
	default:
		return false
	}
}
