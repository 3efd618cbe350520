package password

import (
	"crypto/rand"
	"math/big"
)

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*-_=+"
)

// Generate produces a random password satisfying the policy: one character
// from every class, the rest drawn from the union, shuffled. Length is the
// policy minimum but never below 16 so generated credentials stay strong
// even under a lax policy.
func Generate(p Policy) string {
	length := p.MinLength
	if length < 16 {
		length = 16
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		length = p.MaxLength
	}

	all := lowerChars + upperChars + digitChars + symbolChars
	buf := make([]byte, 0, length)
	buf = append(buf,
		randomChar(lowerChars),
		randomChar(upperChars),
		randomChar(digitChars),
		randomChar(symbolChars),
	)
	for len(buf) < length {
		buf = append(buf, randomChar(all))
	}

	// Fisher-Yates so the guaranteed class characters do not sit at the front.
	for i := len(buf) - 1; i > 0; i-- {
		j := randomInt(i + 1)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

func randomChar(set string) byte {
	return set[randomInt(len(set))]
}

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failing means the platform entropy source is broken;
		// nothing sensible to do but stop.
		panic(err)
	}
	return int(v.Int64())
}
