// Package verifycode generates the short public codes printed on certified documents.
package verifycode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

// Letters excludes I and O, which read as 1 and 0 on paper.
const (
	Letters = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	Digits  = "0123456789"
)

var pattern = regexp.MustCompile(`^[A-HJ-NP-Z]{3}-[0-9]{3}$`)

// Generate returns a code shaped LLL-DDD.
func Generate() (string, error) {
	buf := make([]byte, 0, 7)
	for i := 0; i < 3; i++ {
		c, err := pick(Letters)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	buf = append(buf, '-')
	for i := 0; i < 3; i++ {
		c, err := pick(Digits)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	return string(buf), nil
}

func Valid(code string) bool {
	return pattern.MatchString(code)
}

func pick(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return alphabet[n.Int64()], nil
}
