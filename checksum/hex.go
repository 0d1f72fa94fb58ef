package checksum

import (
	"strconv"
	"strings"
)

// InvalidByte is the sentinel substituted for tokens that are not hex bytes.
const InvalidByte byte = 0xFF

// ParseHexFields converts hex byte tokens ("01", "2b", "E7") into bytes.
//
// Each token must be one or two hex digits; anything else, including an empty
// token, is replaced with InvalidByte instead of being rejected. Legacy test
// stations rely on this to checksum partially filled templates.
func ParseHexFields(fields []string) []byte {
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		out = append(out, parseHexByte(f))
	}

	return out
}

// ParseHex splits text on whitespace and converts each token with the same rules
// as ParseHexFields.
func ParseHex(text string) []byte {
	return ParseHexFields(strings.Fields(text))
}

func parseHexByte(tok string) byte {
	if len(tok) == 0 || len(tok) > 2 {
		return InvalidByte
	}

	v, err := strconv.ParseUint(tok, 16, 8)
	if err != nil {
		return InvalidByte
	}

	return byte(v)
}

// FormatHex renders data as space separated upper-case hex pairs.
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	const digits = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(len(data)*3 - 1)
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(digits[b>>4])
		sb.WriteByte(digits[b&0x0F])
	}

	return sb.String()
}
