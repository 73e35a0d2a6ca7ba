package domain

import (
	"context"
)

// VerificationTier is one of the challenge strictness levels.
type VerificationTier string

const (
	// TierNone means the verification trigger did not fire.
	TierNone VerificationTier = ""

	// TierPINOnly requires the correct PIN alone.
	TierPINOnly VerificationTier = "PIN_ONLY"

	// TierPartial requires the PIN plus one caller-selected identity factor.
	TierPartial VerificationTier = "PARTIAL"

	// TierFull requires surname, date of birth, security code and PIN in
	// strict sequence.
	TierFull VerificationTier = "FULL"
)

// ChallengeField identifies one field requested from the responder.
type ChallengeField string

const (
	FieldSurname      ChallengeField = "surname"
	FieldDateOfBirth  ChallengeField = "dob"          // YYYY-MM-DD
	FieldSecurityCode ChallengeField = "securityCode" // 3 characters
	FieldPIN          ChallengeField = "pin"          // 4 digits
	FieldFactorChoice ChallengeField = "factorChoice" // "1".."3" for PARTIAL
)

// ChallengeResponder supplies one field value per call. The verification
// state machine performs all comparison and normalization; responders only
// collect raw input. A responder error (including context deadline or
// cancellation) is treated as a verification failure by the caller.
type ChallengeResponder interface {
	Respond(ctx context.Context, field ChallengeField) (string, error)
}

// Credentials are the reference identity values a verification run checks
// against. All values are simulation placeholders; no real identity data is
// ever involved.
type Credentials struct {
	Surname      string `json:"surname"`
	DateOfBirth  string `json:"dateOfBirth"`
	SecurityCode string `json:"securityCode"`
	PIN          string `json:"pin"`
}

// SimCredentials returns the fictional reference identity used by the
// simulator and tests.
func SimCredentials() Credentials {
	return Credentials{
		Surname:      "Wahdan",
		DateOfBirth:  "1990-05-14",
		SecurityCode: "123",
		PIN:          "1234",
	}
}
