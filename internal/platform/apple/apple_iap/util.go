package apple_iap

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	uuidHexLen      = 32
	maxUserIDHexLen = 30
	padChar         = "a"
)

// AccountTokenForUser encodes a numeric user id as the appAccountToken the
// client attaches to a StoreKit purchase.
//
// format: [2-hex len][decimal digits of the id][padding to 32 with 'a']
func AccountTokenForUser(userID uint64) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("user id is empty")
	}
	digits := strconv.FormatUint(userID, 10)
	if len(digits) > maxUserIDHexLen {
		return "", fmt.Errorf("user id too long: max length is %d", maxUserIDHexLen)
	}

	uuidHex := fmt.Sprintf("%02x", len(digits)) + digits
	uuidHex += strings.Repeat(padChar, uuidHexLen-len(uuidHex))
	return formatUUID(uuidHex)
}

func formatUUID(uuidHex string) (string, error) {
	if len(uuidHex) != uuidHexLen {
		return "", fmt.Errorf("invalid uuid hex length: %d", len(uuidHex))
	}
	var b strings.Builder
	b.WriteString(uuidHex[:8])
	b.WriteString("-")
	b.WriteString(uuidHex[8:12])
	b.WriteString("-")
	b.WriteString(uuidHex[12:16])
	b.WriteString("-")
	b.WriteString(uuidHex[16:20])
	b.WriteString("-")
	b.WriteString(uuidHex[20:32])
	return b.String(), nil
}

// UserFromAccountToken reverses AccountTokenForUser.
func UserFromAccountToken(token string) (uint64, error) {
	clean := strings.ToLower(strings.ReplaceAll(token, "-", ""))
	if len(clean) != uuidHexLen || !isHex(clean) {
		return 0, fmt.Errorf("invalid account token format")
	}

	n, err := strconv.ParseUint(clean[:2], 16, 8)
	if err != nil || n == 0 || n > maxUserIDHexLen {
		return 0, fmt.Errorf("account token is not encoded by the user id scheme")
	}
	end := 2 + int(n)
	payload, padding := clean[2:end], clean[end:]
	if strings.Trim(padding, padChar) != "" {
		return 0, fmt.Errorf("account token is not encoded by the user id scheme")
	}
	id, err := strconv.ParseUint(payload, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("account token does not carry a numeric user id")
	}
	return id, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if !(unicode.IsDigit(ch) || ('a' <= ch && ch <= 'f')) {
			return false
		}
	}
	return true
}
