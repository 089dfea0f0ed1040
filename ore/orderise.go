// SPDX-License-Identifier: Apache-2.0

package ore

import (
	"math"
	"math/big"
	"regexp"
	"strings"
)

// The collation maps every input onto 30 code points so each character
// fits in five bits: 0 is "no character" (short strings sort first),
// 'a'..'z' are 1..26, runs of whitespace collapse to 27, each digit maps
// to 28, and runs of anything else collapse to 30 and sort last.
var (
	nonAlphanumericOrSpace = regexp.MustCompile(`[^a-z0-9[:space:]]+`)
	whitespaceRun          = regexp.MustCompile(`[[:space:]]+`)
	digit                  = regexp.MustCompile(`[0-9]`)
)

// Orderise packs a string into up to [StringChunks] 64-bit order codes
// whose unsigned lexicographic order matches the case-insensitive
// collation order of the inputs. Only pure-ASCII strings are accepted.
func Orderise(s string) ([]uint64, error) {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return nil, ErrNotASCII
		}
	}

	s = strings.ToLower(s)
	s = nonAlphanumericOrSpace.ReplaceAllString(s, "~")
	s = whitespaceRun.ReplaceAllString(s, "{")
	s = digit.ReplaceAllString(s, "|")

	// Pack each character into five bits of one big number, first
	// character most significant.
	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		n.Lsh(n, 5)
		n.Or(n, big.NewInt(int64(s[i]-96)))
	}

	// Left-align to a 64-bit boundary so the first character occupies
	// the most significant bits of the first chunk.
	n.Lsh(n, uint(64-(len(s)*5)%64))

	mask := new(big.Int).SetUint64(math.MaxUint64)
	low := new(big.Int)

	var chunks []uint64
	for n.Sign() > 0 {
		low.And(n, mask)
		chunks = append([]uint64{low.Uint64()}, chunks...)
		n.Rsh(n, 64)
	}

	if len(chunks) > StringChunks {
		chunks = chunks[:StringChunks]
	}
	return chunks, nil
}
