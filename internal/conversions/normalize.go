package conversions

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// telegramIDPrefix marks synthetic identifiers minted for Telegram
// visitors. They are valid Metrika UserIds but never valid ClientIDs,
// so the Direct feed must not carry them.
const telegramIDPrefix = "telegram_"

// NormalizePhone reduces a free-form phone string to the numeric form
// Direct expects: digits only, country code first. Domestic numbers
// missing the country code (10 digits starting with 9) get a 7
// prepended; the legacy 8-prefixed form is rewritten to 7. Anything
// shorter than 10 digits is unusable and comes back empty.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 10 && digits[0] == '9':
		digits = "7" + digits
	case len(digits) == 11 && digits[0] == '8':
		digits = "7" + digits[1:]
	}
	if len(digits) < 10 {
		return ""
	}
	return digits
}

// PhoneMD5 returns the lowercase hex MD5 of a normalized phone, the
// hashed identity channel Direct matches on. Empty in, empty out.
func PhoneMD5(normalizedPhone string) string {
	if normalizedPhone == "" {
		return ""
	}
	sum := md5.Sum([]byte(normalizedPhone))
	return hex.EncodeToString(sum[:])
}

// ValidClientID keeps raw only when it is a plausible Metrika ClientID:
// a non-empty string of digits representing a strictly positive
// integer. Telegram pseudo-identifiers and anything malformed come
// back empty rather than poisoning the upload.
func ValidClientID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(s), telegramIDPrefix) {
		return ""
	}
	positive := false
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
		if r != '0' {
			positive = true
		}
	}
	if !positive {
		return ""
	}
	return s
}
