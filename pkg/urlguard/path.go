package urlguard

import (
	"errors"
	"strings"
)

var (
	errBackslash     = errors.New("path contains backslash")
	errNullByte      = errors.New("path contains null byte")
	errControlChar   = errors.New("url contains control character")
	errPercentEscape = errors.New("invalid percent escape sequence")
	errEscapesRoot   = errors.New("path escapes root via ..")
)

// checkRaw rejects characters browsers normalise in surprising ways before
// parsing: "\" is treated as "/" and control characters are stripped.
func checkRaw(raw string) error {
	if strings.Contains(raw, `\`) {
		return errBackslash
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < 0x20 || raw[i] == 0x7f {
			if raw[i] == 0 {
				return errNullByte
			}
			return errControlChar
		}
	}
	return nil
}

// checkPath validates an escaped URL path: percent escapes must be well
// formed, %00 is refused and ".." may not climb above the root.
func checkPath(escaped string) error {
	if strings.Contains(strings.ToUpper(escaped), "%00") {
		return errNullByte
	}
	for i := 0; i < len(escaped); i++ {
		if escaped[i] != '%' {
			continue
		}
		if i+2 >= len(escaped) || !isHex(escaped[i+1]) || !isHex(escaped[i+2]) {
			return errPercentEscape
		}
		i += 2
	}
	if !strings.HasPrefix(escaped, "/") {
		return nil
	}

	depth := 0
	for _, seg := range strings.Split(escaped, "/") {
		switch seg {
		case "", ".":
		case "..":
			if depth == 0 {
				return errEscapesRoot
			}
			depth--
		default:
			depth++
		}
	}
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
