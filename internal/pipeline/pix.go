package pipeline

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// EMV BR Code assembly for PIX deposits, per the BCB "Pix copy and
// paste" layout: a TLV payload terminated by a CRC16-CCITT checksum.

const (
	pixGUI = "br.gov.bcb.pix"

	emvPayloadFormat    = "00"
	emvMerchantAccount  = "26"
	emvMerchantCategory = "52"
	emvCurrency         = "53"
	emvAmount           = "54"
	emvCountry          = "58"
	emvMerchantName     = "59"
	emvMerchantCity     = "60"
	emvAdditionalData   = "62"
	emvCRC              = "63"

	// BRL numeric currency code.
	currencyBRL = "986"
)

// PIXConfig identifies the receiving PIX account on generated QR codes.
type PIXConfig struct {
	Key          string
	MerchantName string
	MerchantCity string
}

// BuildPIXCode renders the EMV BR Code string for a deposit of amount
// BRL referenced by txid.
func BuildPIXCode(cfg PIXConfig, amount decimal.Decimal, txid string) string {
	var b strings.Builder
	b.WriteString(tlv(emvPayloadFormat, "01"))
	b.WriteString(tlv(emvMerchantAccount, tlv("00", pixGUI)+tlv("01", cfg.Key)))
	b.WriteString(tlv(emvMerchantCategory, "0000"))
	b.WriteString(tlv(emvCurrency, currencyBRL))
	b.WriteString(tlv(emvAmount, amount.StringFixed(2)))
	b.WriteString(tlv(emvCountry, "BR"))
	b.WriteString(tlv(emvMerchantName, clip(cfg.MerchantName, 25)))
	b.WriteString(tlv(emvMerchantCity, clip(cfg.MerchantCity, 15)))
	b.WriteString(tlv(emvAdditionalData, tlv("05", clip(txid, 25))))

	// The CRC covers the payload including its own "6304" prefix.
	payload := b.String() + emvCRC + "04"
	return payload + fmt.Sprintf("%04X", crc16CCITT([]byte(payload)))
}

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// crc16CCITT computes CRC16/CCITT-FALSE: poly 0x1021, init 0xFFFF.
func crc16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
