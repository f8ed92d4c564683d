package user

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	patientCodeLen      = 6
	patientCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var generatePatientCodeFunc = generatePatientCode // mockable

// generatePatientCode returns a random upper-case alphanumeric code that caretakers use to link to a patient.
func generatePatientCode() (string, error) {
	var code strings.Builder
	max := big.NewInt(int64(len(patientCodeAlphabet)))
	for i := 0; i < patientCodeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code.WriteByte(patientCodeAlphabet[n.Int64()])
	}
	return code.String(), nil
}

func NormalizePatientCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
