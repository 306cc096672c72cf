package pickupcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeLength is the number of digits in a pickup code. Six digits keeps the
// code speakable over the phone while the store-layer uniqueness check keeps
// two live orders from ever sharing one.
const CodeLength = 6

var codeSpace = big.NewInt(1000000)

// Generator produces short numeric collection codes. Uniqueness among
// outstanding orders is the store's job; the generator only guarantees
// unpredictability.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a zero-padded 6-digit numeric code from crypto/rand.
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate pickup code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
