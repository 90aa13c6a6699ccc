package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	numberBytes       = "0123456789"
	upperAlphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func GenerateRandomNumericString(length int) string {
	return generateRandom(length, numberBytes)
}

// GenerateOTP returns a numeric passcode of OTPLength digits.
func GenerateOTP() string {
	return GenerateRandomNumericString(OTPLength)
}

// GenerateReferralCode returns ReferralCodeLength symbols drawn uniformly from
// A-Z0-9. Uniqueness is the caller's concern.
func GenerateReferralCode() string {
	return generateRandom(ReferralCodeLength, upperAlphanumeric)
}

func generateRandom(length int, charset string) string {
	result := make([]byte, length)
	charsetLength := big.NewInt(int64(len(charset)))

	for i := range result {
		num, err := rand.Int(rand.Reader, charsetLength)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(err)
		}
		result[i] = charset[num.Int64()]
	}

	return string(result)
}
