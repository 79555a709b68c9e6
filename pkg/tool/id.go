package tool

import (
	"strconv"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateRef returns a provider-style reference such as "chp_0190b8...".
func GenerateRef(prefix string) string {
	return prefix + "_" + uuid.Must(uuid.NewV7()).String()
}

// ParseID parses a positive decimal id.
func ParseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func FormatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
