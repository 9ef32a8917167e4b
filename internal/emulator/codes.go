package emulator

import (
	"fmt"
	"sync"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// codeIssuer hands out six digit magic codes from an HOTP sequence over a
// per-process secret.
type codeIssuer struct {
	mu      sync.Mutex
	secret  string
	counter uint64
}

func newCodeIssuer() (*codeIssuer, error) {
	key, err := hotp.Generate(hotp.GenerateOpts{
		Issuer:      "signinbot-emulator",
		AccountName: "consent",
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate code secret: %w", err)
	}
	return &codeIssuer{secret: key.Secret()}, nil
}

func (c *codeIssuer) next() (string, error) {
	c.mu.Lock()
	counter := c.counter
	c.counter++
	c.mu.Unlock()

	return hotp.GenerateCodeCustom(c.secret, counter, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}
