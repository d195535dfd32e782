package extract

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"strings"
)

// Raw PDF scanning: no parser, just byte-pattern matching over text objects
// and content streams. This is the path of last resort for files that real
// PDF libraries choke on (malformed xref tables, exporter quirks).

var (
	btRegionRe = regexp.MustCompile(`(?s)BT(.*?)ET`)
	streamRe   = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
	// (text) Tj and (text) ' show operators. The group tolerates escaped parens.
	showRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*(?:Tj|')`)
	// [(a) -120 (b)] TJ arrays.
	tjArrayRe = regexp.MustCompile(`(?s)\[((?:[^\[\]\\]|\\.)*?)\]\s*TJ`)
	parenRe   = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
	// Permissive pass: any alphanumeric run of 10+ prose-ish characters.
	// Catches slide-deck exports whose show operators we fail to parse.
	alnumRunRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9 ,.;:'"!?()-]{9,}`)
)

// ScanPDF extracts candidate text fragments from raw PDF bytes. Fragments
// failing the readability gate are dropped; survivors are deduplicated
// (first occurrence wins) and joined with newlines. Returns "" when nothing
// readable was found, never placeholder content.
func ScanPDF(data []byte, th Thresholds) string {
	var fragments []string
	seen := make(map[string]struct{})

	add := func(frag string) {
		frag = strings.TrimSpace(frag)
		if frag == "" || !IsReadable(frag, th) {
			return
		}
		if _, dup := seen[frag]; dup {
			return
		}
		seen[frag] = struct{}{}
		fragments = append(fragments, frag)
	}

	scanRegion := func(region []byte) {
		for _, m := range showRe.FindAllSubmatch(region, -1) {
			add(unescapePDFString(m[1]))
		}
		for _, m := range tjArrayRe.FindAllSubmatch(region, -1) {
			var sb strings.Builder
			for _, piece := range parenRe.FindAllSubmatch(m[1], -1) {
				sb.WriteString(unescapePDFString(piece[1]))
			}
			add(sb.String())
		}
	}

	for _, m := range btRegionRe.FindAllSubmatch(data, -1) {
		scanRegion(m[1])
	}

	for _, m := range streamRe.FindAllSubmatch(data, -1) {
		body := m[1]
		if inflated, ok := tryInflate(body); ok {
			body = inflated
		}
		scanRegion(body)
		for _, run := range alnumRunRe.FindAll(body, -1) {
			add(string(run))
		}
	}

	for _, run := range alnumRunRe.FindAll(data, -1) {
		add(string(run))
	}

	if len(fragments) == 0 {
		return ""
	}
	return strings.Join(fragments, "\n")
}

// tryInflate attempts zlib decompression for FlateDecode streams. Streams
// carry no reliable marker here, so failure just means "already plain".
func tryInflate(body []byte) ([]byte, bool) {
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, 32<<20))
	if err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}

// unescapePDFString resolves backslash escapes in a PDF string literal,
// including octal byte escapes.
func unescapePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '(', ')', '\\':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

var structuralMarkers = []string{"endobj", "endstream", "/Type", "/Font", "/Length", "xref"}

// structuralNoiseLimit is the marker count above which a raw-scan result is
// considered format syntax rather than prose.
const structuralNoiseLimit = 20

// IsStructuralNoise reports whether scanned text is dominated by PDF syntax
// artifacts (object/stream delimiters, dictionary keys) instead of content.
func IsStructuralNoise(text string) bool {
	total := 0
	for _, marker := range structuralMarkers {
		total += strings.Count(text, marker)
		if total >= structuralNoiseLimit {
			return true
		}
	}
	return false
}
