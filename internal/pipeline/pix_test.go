package pipeline

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16CCITT(t *testing.T) {
	// CRC16/CCITT-FALSE check value.
	assert.Equal(t, uint16(0x29B1), crc16CCITT([]byte("123456789")))
	assert.Equal(t, uint16(0xFFFF), crc16CCITT(nil))
}

func TestTLV(t *testing.T) {
	assert.Equal(t, "0002BR", tlv("00", "BR"))
	assert.Equal(t, "2614br.gov.bcb.pix", tlv("26", "br.gov.bcb.pix"))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 8))
	assert.Equal(t, "abcdefgh", clip("abcdefghij", 8))
}

func TestBuildPIXCode(t *testing.T) {
	cfg := PIXConfig{
		Key:          "pix@lumapay.example",
		MerchantName: "LUMAPAY LTDA",
		MerchantCity: "SAO PAULO",
	}
	code := BuildPIXCode(cfg, decimal.NewFromFloat(1250.5), "rdeadbeef-c1")

	// Static payload format indicator.
	assert.True(t, strings.HasPrefix(code, "000201"))
	// Merchant account template carries the PIX GUI and key.
	assert.Contains(t, code, "br.gov.bcb.pix")
	assert.Contains(t, code, cfg.Key)
	// Amount with two decimals, BRL currency, country code.
	assert.Contains(t, code, "54071250.50")
	assert.Contains(t, code, "5303986")
	assert.Contains(t, code, "5802BR")
	// Reference inside the additional-data template.
	assert.Contains(t, code, "rdeadbeef-c1")

	// The trailing CRC verifies against the payload it covers.
	require.Greater(t, len(code), 8)
	payload, crc := code[:len(code)-4], code[len(code)-4:]
	assert.True(t, strings.HasSuffix(payload, "6304"))
	assert.Equal(t, crc, strings.ToUpper(crc))
	want := crc16CCITT([]byte(payload))
	assert.Equal(t, want, mustParseCRC(t, crc))
}

func mustParseCRC(t *testing.T, s string) uint16 {
	t.Helper()
	var v uint16
	for _, c := range []byte(s) {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			t.Fatalf("bad crc digit %q", c)
		}
		v = v<<4 | uint16(d)
	}
	return v
}

func TestBuildPIXCodeClipsLongFields(t *testing.T) {
	cfg := PIXConfig{
		Key:          "k",
		MerchantName: strings.Repeat("N", 40),
		MerchantCity: strings.Repeat("C", 40),
	}
	code := BuildPIXCode(cfg, decimal.NewFromInt(10), strings.Repeat("r", 40))
	assert.Contains(t, code, "5925"+strings.Repeat("N", 25))
	assert.Contains(t, code, "6015"+strings.Repeat("C", 15))
}
