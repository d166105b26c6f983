package businessflow

import (
	"testing"

	"github.com/amirphl/Yamata-WABA/config"
	"github.com/stretchr/testify/assert"
)

func TestPhoneNormalizer_Normalize(t *testing.T) {
	p := NewPhoneNormalizer(config.WhatsAppConfig{DefaultRegion: "ir", LocalNumberLen: 10})

	tests := []struct {
		raw  string
		want string
	}{
		{"+98 912 345 6789", "+989123456789"},
		{"0098-912-345-6789", "+989123456789"},
		{"09123456789", "+989123456789"},
		{"9123456789", "+989123456789"},
		{"  +1 (415) 555-0100 ", "+14155550100"},
		{"14155550100", "+14155550100"},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Normalize(tt.raw), tt.raw)
	}
}

func TestPhoneNormalizer_NoRegion(t *testing.T) {
	p := NewPhoneNormalizer(config.WhatsAppConfig{})
	assert.Equal(t, "+9123456789", p.Normalize("9123456789"))
}
