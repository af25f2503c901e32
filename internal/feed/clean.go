package feed

import (
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// C0 control characters break XML parsers. Tab (0x09), LF (0x0A) and CR
// (0x0D) are legal in XML 1.0 and kept; DEL (0x7F) is stripped with the
// rest.
func isIllegalControl(r rune) bool {
	if r == 0x09 || r == 0x0A || r == 0x0D {
		return false
	}
	return r < 0x20 || r == 0x7F
}

// StripControl removes C0 control characters except tab, CR and LF.
// Running it on its own output is a no-op.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if isIllegalControl(r) {
			return -1
		}
		return r
	}, s)
}

var xmlEncodingPattern = regexp.MustCompile(`(?i)<\?xml[^>]*?encoding=["']([^"']+)["']`)

// DetectEncoding guesses the document encoding from the XML declaration,
// falling back to the content-type charset. Returns "" when neither
// reports one.
func DetectEncoding(raw []byte, contentType string) string {
	head := raw
	if len(head) > 1024 {
		head = head[:1024]
	}
	if m := xmlEncodingPattern.FindSubmatch(head); m != nil {
		return strings.ToLower(strings.TrimSpace(string(m[1])))
	}

	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(part)
		if rest, ok := strings.CutPrefix(strings.ToLower(part), "charset="); ok {
			return strings.ToLower(strings.Trim(rest, `"'`))
		}
	}
	return ""
}

// decodeWith decodes raw using the named encoding. Unknown names and
// decode failures fall back to treating the bytes as UTF-8.
func decodeWith(raw []byte, name string) string {
	if name == "" || name == "utf-8" || name == "utf8" {
		return string(raw)
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
