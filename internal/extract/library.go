package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// Library-backed PDF extraction. The in-memory reader handles well-formed
// files; the tempfile path exists because some PDF libraries behave
// differently given a seekable file on disk than a byte slice.

// LibraryPDFText extracts text using the pure-Go PDF reader, whole document
// first, then page by page when the bulk read fails. The reader panics on
// malformed files, so both paths run behind a recover guard.
func LibraryPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	if whole, werr := wholeDocumentText(r); werr == nil && whole != "" {
		return whole, nil
	}

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		pageText, perr := singlePageText(r, i)
		if perr != nil {
			log.Debug().Err(perr).Int("page", i).Msg("Page text extraction failed, skipping")
			continue
		}
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

func wholeDocumentText(r *pdf.Reader) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("plain text panic: %v", rec)
		}
	}()
	rd, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func singlePageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("page panic: %v", rec)
		}
	}()
	p := r.Page(num)
	if p.V.IsNull() {
		return "", fmt.Errorf("page %d is null", num)
	}
	s, err := p.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// TempfilePDFText writes the document to a temp file and extracts text with
// go-fitz. Used as the second strategy when the in-memory reader yields
// nothing useful.
func TempfilePDFText(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "extract-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp pdf: %w", err)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf with fitz: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			log.Debug().Err(err).Int("page", i+1).Msg("Fitz page text failed, skipping")
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}
