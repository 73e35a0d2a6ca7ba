package verify

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kite/internal/domain"
)

// MapResponder answers challenges from a fixed field map. The API layer
// builds one from the verification request body; tests script runs with it.
type MapResponder struct {
	Answers map[domain.ChallengeField]string
}

// Respond returns the scripted answer for a field. A missing field is an
// error so unexpected challenges surface instead of silently failing a
// comparison.
func (m *MapResponder) Respond(ctx context.Context, field domain.ChallengeField) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	answer, ok := m.Answers[field]
	if !ok {
		return "", fmt.Errorf("no answer provided for field %q", field)
	}
	return answer, nil
}
