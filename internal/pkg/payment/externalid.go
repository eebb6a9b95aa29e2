package payment

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const externalIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const externalIDSuffixLen = 10

// NewExternalID returns "PMB-<VARIANT>-" followed by ten random uppercase
// alphanumerics.
func NewExternalID(variant string) (string, error) {
	suffix, err := randomUpper(externalIDSuffixLen)
	if err != nil {
		return "", err
	}
	return "PMB-" + strings.ToUpper(strings.TrimSpace(variant)) + "-" + suffix, nil
}

func randomUpper(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid length: %d", length)
	}

	// 252 is the largest multiple of 36 below 256.
	const maxRandomByte = 252

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			out[written] = externalIDAlphabet[int(b)%len(externalIDAlphabet)]
			written++
			if written == length {
				break
			}
		}
	}
	return string(out), nil
}
