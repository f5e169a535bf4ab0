package util

import (
	"fmt"
	"strings"
)

const kMaxPrintable = 64

func ToPrintableString(b []byte) string {
	sz := len(b)
	if sz == 0 {
		return ""
	}
	buf := make([]byte, sz)
	for i := 0; i < sz; i++ {
		if b[i] < 32 || b[i] > 126 {
			buf[i] = '.'
		} else {
			buf[i] = b[i]
		}
	}
	return string(buf)
}

func ToHexString(data []byte) string {
	return fmt.Sprintf("%X", data)
}

// ToLogString renders a key for log lines, truncating long keys.
func ToLogString(data []byte) string {
	if len(data) <= kMaxPrintable {
		return fmt.Sprintf("%s [%X]", ToPrintableString(data), data)
	}
	head := data[:kMaxPrintable]
	return fmt.Sprintf("%s... [%X...] len=%d", ToPrintableString(head), head, len(data))
}

// HexDumpString formats data 16 bytes per row with an offset column and a
// printable column, like hexdump -C.
func HexDumpString(data []byte) string {
	var b strings.Builder
	for start := 0; start < len(data); start += 16 {
		end := start + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&b, "%08x ", start)
		for i := start; i < start+16; i++ {
			if i < end {
				fmt.Fprintf(&b, " %02x", data[i])
			} else {
				b.WriteString("   ")
			}
		}
		fmt.Fprintf(&b, "  |%s|\n", ToPrintableString(data[start:end]))
	}
	return b.String()
}
