package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// OOXML documents are zip archives; the text lives in well-known XML parts.
// We walk those parts directly instead of modeling the full WordprocessingML
// or PresentationML schemas.

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// ScanDocx pulls paragraph text from word/document.xml. Runs within one
// paragraph are concatenated; paragraphs are newline-separated.
func ScanDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		text, err := collectWordText(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		return text, nil
	}
	return "", fmt.Errorf("docx archive has no word/document.xml")
}

// collectWordText streams an XML part and gathers character data inside
// <w:t> elements, breaking lines at paragraph boundaries.
func collectWordText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		sb      strings.Builder
		para    strings.Builder
		inText  bool
	)
	flush := func() {
		if line := strings.TrimSpace(para.String()); line != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(line)
		}
		para.Reset()
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flush()
	return sb.String(), nil
}

// ScanPptx extracts slide text in slide-number order. Each slide is prefixed
// with a "--- Slide N ---" marker and slides are separated by blank lines so
// downstream summarization keeps deck structure.
func ScanPptx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pptx archive: %w", err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: n, file: f})
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("pptx archive has no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sb strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", fmt.Errorf("open slide %d: %w", s.num, err)
		}
		text, err := collectSlideText(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.num, err)
		}
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- Slide %d ---\n%s", s.num, text)
	}
	return sb.String(), nil
}

// collectSlideText gathers character data inside <a:t> elements. Each text
// run becomes its own line; slides rarely carry intra-run structure worth
// preserving beyond that.
func collectSlideText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		lines  []string
		run    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse slide xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
				run.Reset()
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
				if s := strings.TrimSpace(run.String()); s != "" {
					lines = append(lines, s)
				}
			}
		case xml.CharData:
			if inText {
				run.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
