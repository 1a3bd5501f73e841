package verify

import (
	"crypto/subtle"
	"fmt"

	"questhunt/internal/models"
)

// Codes are matched exactly, case-sensitive. The comparison does not exit on
// the first differing byte, so response timing does not reveal how much of a
// guess was right.
func verifyCode(step *models.Step, ev models.Evidence) (Verdict, error) {
	if step.VerificationCode == "" {
		return Verdict{}, fmt.Errorf("step %s requires code verification but has no code", step.ID)
	}
	if ev.Code == "" {
		return rejected(ReasonMissingEvidence), nil
	}

	if subtle.ConstantTimeCompare([]byte(ev.Code), []byte(step.VerificationCode)) == 1 {
		return accepted(models.Evidence{Code: ev.Code}), nil
	}
	return rejected(ReasonWrongCode), nil
}
