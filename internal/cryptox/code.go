package cryptox

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// GenerateCode returns a uniformly random integer in [0, max).
func GenerateCode(max int64) (int, error) {
	if max <= 0 {
		return 0, errors.New("code range must be positive")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
