package businessflow

import (
	"strconv"
	"strings"

	"github.com/amirphl/Yamata-WABA/config"
	"github.com/nyaruka/phonenumbers"
)

// PhoneNormalizer canonicalizes recipient phone numbers
type PhoneNormalizer struct {
	callingCode int
	localLen    int
}

// NewPhoneNormalizer derives the default calling code from the configured region
func NewPhoneNormalizer(cfg config.WhatsAppConfig) *PhoneNormalizer {
	return &PhoneNormalizer{
		callingCode: phonenumbers.GetCountryCodeForRegion(strings.ToUpper(cfg.DefaultRegion)),
		localLen:    cfg.LocalNumberLen,
	}
}

// Normalize keeps digits with a single leading '+'. Bare local numbers get the default calling code.
// It returns "" when no digits remain.
func (p *PhoneNormalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(raw, "+") {
		return "+" + digits
	}
	if strings.HasPrefix(digits, "00") {
		return "+" + digits[2:]
	}
	if p.callingCode > 0 && p.localLen > 0 {
		switch {
		case len(digits) == p.localLen:
			return "+" + strconv.Itoa(p.callingCode) + digits
		case len(digits) == p.localLen+1 && digits[0] == '0':
			return "+" + strconv.Itoa(p.callingCode) + digits[1:]
		}
	}
	return "+" + digits
}
