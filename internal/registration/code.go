package registration

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Code alphabets. 0, O, 1, I and L are left out because they are easy to
// misread on a panel.
const (
	codeLetters = "ABCDEFGHJKMNPQRSTUVWXYZ"
	codeDigits  = "23456789"
)

// Code is a pairing code of the form LLL-DDD.
type Code string

// GenerateCode returns a new random pairing code.
func GenerateCode() (Code, error) {
	buf := make([]byte, 0, 7)
	for i := 0; i < 3; i++ {
		c, err := pick(codeLetters)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	buf = append(buf, '-')
	for i := 0; i < 3; i++ {
		c, err := pick(codeDigits)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	return Code(buf), nil
}

func pick(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("generating pairing code: %w", err)
	}
	return alphabet[n.Int64()], nil
}

// Valid reports whether c has the pairing code shape and alphabet.
func (c Code) Valid() bool {
	if len(c) != 7 || c[3] != '-' {
		return false
	}
	for i := 0; i < 3; i++ {
		if !contains(codeLetters, c[i]) || !contains(codeDigits, c[4+i]) {
			return false
		}
	}
	return true
}

func contains(alphabet string, b byte) bool {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == b {
			return true
		}
	}
	return false
}
