package extract

import (
	"bytes"
	"compress/zlib"
	"strings"
	"testing"
)

func TestScanPDFShowOperators(t *testing.T) {
	data := []byte(`%PDF-1.4
1 0 obj
BT
/F1 12 Tf
(The cell membrane regulates transport.) Tj
(Osmosis moves water across it.) '
ET
endobj`)

	got := ScanPDF(data, DefaultThresholds())
	if !strings.Contains(got, "The cell membrane regulates transport.") {
		t.Errorf("missing Tj fragment, got %q", got)
	}
	if !strings.Contains(got, "Osmosis moves water across it.") {
		t.Errorf("missing quote-operator fragment, got %q", got)
	}
}

func TestScanPDFTJArray(t *testing.T) {
	data := []byte(`BT
[(Chapter one covers ) -120 (basic thermodynamics.)] TJ
ET`)

	got := ScanPDF(data, DefaultThresholds())
	if !strings.Contains(got, "Chapter one covers basic thermodynamics.") {
		t.Errorf("TJ array pieces not joined, got %q", got)
	}
}

func TestScanPDFEscapes(t *testing.T) {
	data := []byte(`BT
(Balanced \(equations\) need coefficients \164\157 work.) Tj
ET`)

	got := ScanPDF(data, DefaultThresholds())
	if !strings.Contains(got, "Balanced (equations) need coefficients to work.") {
		t.Errorf("escapes not resolved, got %q", got)
	}
}

func TestScanPDFDeflatedStream(t *testing.T) {
	var deflated bytes.Buffer
	zw := zlib.NewWriter(&deflated)
	_, _ = zw.Write([]byte(`BT (Compressed streams still carry readable sentences.) Tj ET`))
	_ = zw.Close()

	var data bytes.Buffer
	data.WriteString("2 0 obj\nstream\n")
	data.Write(deflated.Bytes())
	data.WriteString("endstream\nendobj")

	got := ScanPDF(data.Bytes(), DefaultThresholds())
	if !strings.Contains(got, "Compressed streams still carry readable sentences.") {
		t.Errorf("deflated stream not inflated, got %q", got)
	}
}

func TestScanPDFDeduplicates(t *testing.T) {
	data := []byte(`BT (Repeated heading text here) Tj ET
BT (Repeated heading text here) Tj ET
BT (Repeated heading text here) Tj ET`)

	got := ScanPDF(data, DefaultThresholds())
	n := 0
	for _, line := range strings.Split(got, "\n") {
		if line == "Repeated heading text here" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("fragment appears %d times, want 1", n)
	}
}

func TestScanPDFPreservesOrder(t *testing.T) {
	data := []byte(`BT (First paragraph of the document.) Tj ET
BT (Second paragraph follows after.) Tj ET`)

	got := ScanPDF(data, DefaultThresholds())
	first := strings.Index(got, "First paragraph")
	second := strings.Index(got, "Second paragraph")
	if first < 0 || second < 0 || first > second {
		t.Errorf("order not preserved: %q", got)
	}
}

func TestScanPDFNothingReadable(t *testing.T) {
	data := []byte("\x00\x01\x02\x03 BT (\x05\x06\x07) Tj ET \xff\xfe")
	if got := ScanPDF(data, DefaultThresholds()); got != "" {
		t.Errorf("want empty result for unreadable input, got %q", got)
	}
}

func TestScanPDFPermissiveRun(t *testing.T) {
	// No show operators at all; the alnum-run pass should still find prose.
	data := []byte("garbage\x00\x01 Slide decks sometimes hide text like this \x02junk")
	got := ScanPDF(data, RelaxedThresholds())
	if !strings.Contains(got, "Slide decks sometimes hide text like this") {
		t.Errorf("permissive run missed prose, got %q", got)
	}
}

func TestIsStructuralNoise(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("1 0 obj /Type /Font /Length 44 endobj endstream xref\n")
	}
	if !IsStructuralNoise(sb.String()) {
		t.Error("marker-dense text should register as structural noise")
	}
	if IsStructuralNoise("A perfectly ordinary paragraph about endoplasmic reticulum.") {
		t.Error("prose flagged as structural noise")
	}
}
