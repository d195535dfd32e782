package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Keynote files are zip bundles whose own format is proprietary, but recent
// versions embed a QuickLook preview PDF we can extract from instead.

// KeynotePreviewPDF returns the embedded preview PDF bytes from a .key
// bundle, or an error if the bundle carries none.
func KeynotePreviewPDF(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open keynote bundle: %w", err)
	}
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if name != "quicklook/preview.pdf" && name != "quicklook/preview-web.pdf" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		pdf, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if len(pdf) == 0 {
			continue
		}
		return pdf, nil
	}
	return nil, fmt.Errorf("keynote bundle has no QuickLook preview PDF")
}
