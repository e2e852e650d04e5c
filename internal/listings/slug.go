package listings

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/gosimple/slug"
)

const (
	slugSuffixLength = 6
	randomSlugLength = 12
	maxSlugBase      = 80
	slugAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var titleKeys = []string{"title", "name", "jobTitle"}

// BuildSlug derives the listing slug from the first title-like value plus a
// random suffix. Without a usable title the slug is fully random.
func BuildSlug(values Values) string {
	for _, key := range titleKeys {
		title, ok := values.Text(key)
		if !ok {
			continue
		}
		base := strings.Trim(truncate(slug.Make(title), maxSlugBase), "-")
		if base == "" {
			continue
		}
		return base + "-" + randomString(slugSuffixLength)
	}
	return randomString(randomSlugLength)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func randomString(n int) string {
	var b strings.Builder
	b.Grow(n)
	limit := big.NewInt(int64(len(slugAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte(slugAlphabet[i%len(slugAlphabet)])
			continue
		}
		b.WriteByte(slugAlphabet[idx.Int64()])
	}
	return b.String()
}
