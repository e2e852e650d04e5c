package instance

import (
	"os"
	"strings"
)

var idEnvVars = []string{"BAZAAR_INSTANCE_ID", "DYNO", "HOSTNAME"}

// GetID identifies the running process in logs and lock holders. It reads
// the first non-empty of BAZAAR_INSTANCE_ID, DYNO and HOSTNAME, falling back
// to "<kind>-local".
func GetID(kind string) string {
	for _, key := range idEnvVars {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if kind == "" {
		kind = "bazaar"
	}
	return kind + "-local"
}
