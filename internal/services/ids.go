package services

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	draftTokenLength = 48
	tokenAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	trainerIDPrefix  = "trn_"
)

// newDraftToken returns draftTokenLength random alphanumerics. Bytes at or
// above 248 are rejected so every symbol is equally likely.
func newDraftToken() (string, error) {
	const limit = 256 - 256%len(tokenAlphabet)
	var b strings.Builder
	b.Grow(draftTokenLength)
	buf := make([]byte, draftTokenLength)
	for b.Len() < draftTokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate draft token: %w", err)
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			b.WriteByte(tokenAlphabet[int(c)%len(tokenAlphabet)])
			if b.Len() == draftTokenLength {
				break
			}
		}
	}
	return b.String(), nil
}

func newTrainerID() string {
	return trainerIDPrefix + strings.ToLower(ulid.Make().String())
}
