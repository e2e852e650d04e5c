package env

import (
	"os"
	"strings"
)

// Prefix is shared with the envconfig-loaded settings in pkg/config.
const Prefix = "BAZAAR_"

// Get reads BAZAAR_<key>, then the bare key, before falling back. It serves
// settings needed before config.Load runs, such as the bootstrap log format.
func Get(key, fallback string) string {
	key = strings.TrimPrefix(key, Prefix)
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
