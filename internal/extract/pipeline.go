package extract

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/docextract/internal/filetype"
	"github.com/local/docextract/internal/metrics"
)

// Config tunes pipeline acceptance and fallback behavior.
type Config struct {
	// MinTextLen is the minimum accepted character count for an extraction
	// strategy's output. Shorter results trigger the next strategy.
	MinTextLen int
	// HeaderScanWindow bounds how far into the file we search for a %PDF
	// marker when the file does not start with one.
	HeaderScanWindow int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{MinTextLen: 50, HeaderScanWindow: 1024}
}

// Summarizer condenses extracted text down to a character budget.
type Summarizer interface {
	Summarize(text string) string
	Budget() int
}

// Rasterizer renders document pages to bounded images for vision models.
type Rasterizer interface {
	Render(ctx context.Context, pdfData []byte, progress Progress) ([]PageImage, error)
}

// Converter turns legacy office formats into PDF.
type Converter interface {
	ConvertToPDF(ctx context.Context, data []byte, filename string) ([]byte, error)
}

// Pipeline runs format detection and the strategy fallback chain.
type Pipeline struct {
	cfg        Config
	detector   *filetype.Detector
	summarizer Summarizer
	rasterizer Rasterizer
	converter  Converter
}

// New builds a pipeline. summarizer, rasterizer and converter may be nil;
// the corresponding stages are then skipped.
func New(cfg Config, det *filetype.Detector, sum Summarizer, ras Rasterizer, conv Converter) *Pipeline {
	if cfg.MinTextLen <= 0 {
		cfg.MinTextLen = DefaultConfig().MinTextLen
	}
	if cfg.HeaderScanWindow <= 0 {
		cfg.HeaderScanWindow = DefaultConfig().HeaderScanWindow
	}
	return &Pipeline{cfg: cfg, detector: det, summarizer: sum, rasterizer: ras, converter: conv}
}

// Extract detects the document format and runs the matching extraction
// chain. The returned result always carries non-empty text or at least one
// page image; everything else is an *Error with a remediation hint.
func (p *Pipeline) Extract(ctx context.Context, doc Document, progress Progress) (*Result, error) {
	if len(doc.Data) == 0 {
		return nil, failf(CodeCorrupt, "Upload the file again; the received copy was empty.", "document %q is empty", doc.Filename)
	}

	info, err := p.detector.Detect(doc.Data, doc.Filename)
	if err != nil {
		return nil, failf(CodeUnsupported, "Convert the file to PDF or DOCX and retry.", "detect type of %q: %v", doc.Filename, err)
	}
	log.Info().Str("file", doc.Filename).Str("mime", info.MIMEType).Str("class", string(info.Class)).Msg("Detected document type")

	// A file that claims to be a PDF but sniffs as something else has either
	// a damaged header or junk prepended. Without any %PDF marker in the scan
	// window it is corrupt; with one, route it to the PDF chain, which trims
	// the junk itself.
	class := info.Class
	if class != filetype.ClassPDF && declaresPDF(doc) {
		window := p.cfg.HeaderScanWindow
		if window > len(doc.Data) {
			window = len(doc.Data)
		}
		if !bytes.Contains(doc.Data[:window], []byte("%PDF")) {
			return nil, failf(CodeCorrupt,
				"The PDF is damaged: its header is missing. Re-export the PDF and upload it again.",
				"%q declares PDF but carries no %%PDF header", doc.Filename)
		}
		class = filetype.ClassPDF
	}

	var res *Result
	switch class {
	case filetype.ClassPDF:
		res, err = p.extractPDF(ctx, doc.Data, progress)
	case filetype.ClassDocx:
		res, err = p.extractDocx(doc.Data, progress)
	case filetype.ClassPptx:
		res, err = p.extractPptx(doc.Data, progress)
	case filetype.ClassKeynote:
		res, err = p.extractKeynote(ctx, doc.Data, progress)
	case filetype.ClassLegacyOffice:
		res, err = p.extractLegacy(ctx, doc, progress)
	case filetype.ClassText:
		res, err = p.extractPlainText(doc.Data)
	case filetype.ClassImage:
		res = &Result{Kind: KindImages, Pages: []PageImage{{PageNumber: 1, Bytes: doc.Data, MIMEType: info.MIMEType}}, Strategy: StrategyImagePassthrough}
	default:
		return nil, failf(CodeUnsupported,
			fmt.Sprintf("Files of type %s are not supported. Convert to PDF, DOCX or PPTX and retry.", info.Description),
			"unsupported document type %s for %q", info.MIMEType, doc.Filename)
	}
	if err != nil {
		metrics.RecordExtraction(string(class), "error")
		return nil, err
	}

	if res.Kind == KindText && p.summarizer != nil && utf8.RuneCountInString(res.Text) > p.summarizer.Budget() {
		report(progress, "Condensing extracted text")
		res.Text = p.summarizer.Summarize(res.Text)
		// Cleanup can eat a document made entirely of boilerplate. An empty
		// success must never leave the pipeline.
		if strings.TrimSpace(res.Text) == "" {
			metrics.RecordExtraction(string(class), "error")
			return nil, failf(CodeExhausted,
				"The document contained no usable study text after cleanup. Try a version with full sentences.",
				"condensing removed all content from %q", doc.Filename)
		}
	}
	metrics.RecordExtraction(string(class), "ok")
	log.Info().Str("file", doc.Filename).Str("strategy", res.Strategy).Int("chars", len(res.Text)).Int("pages", len(res.Pages)).Msg("Extraction complete")
	return res, nil
}

// Strategy names recorded on results, useful in logs and tests.
const (
	StrategyLibrary          = "library"
	StrategyTempfileLibrary  = "tempfile_library"
	StrategyRawScan          = "raw_scan"
	StrategyAggressiveScan   = "aggressive_scan"
	StrategyRaster           = "raster"
	StrategyOOXML            = "ooxml"
	StrategyKeynotePreview   = "keynote_preview"
	StrategyPlainText        = "plain_text"
	StrategyConvertedPDF     = "converted_pdf"
	StrategyImagePassthrough = "image_passthrough"
)

func (p *Pipeline) extractPDF(ctx context.Context, data []byte, progress Progress) (*Result, error) {
	// Some exporters prepend junk before the header; PDF readers tolerate a
	// small offset but raw scanning does not need one at all.
	data = trimToPDFHeader(data, p.cfg.HeaderScanWindow)
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		// Mislabeled file. Raw scanning is the only option left.
		report(progress, "File does not look like a PDF, scanning raw content")
		return p.rawScanOnly(data)
	}

	// Scanned documents waste two library strategies before rendering; a
	// cheap page analysis routes them straight to images.
	if analyzer, ok := p.rasterizer.(interface {
		LooksImageOnly(pdfData []byte, samplePages int) bool
	}); ok && analyzer.LooksImageOnly(data, 3) {
		report(progress, "Document looks scanned, rendering pages as images")
		pages, err := p.rasterizer.Render(ctx, data, progress)
		if err == nil && len(pages) > 0 {
			return &Result{Kind: KindImages, Pages: pages, Strategy: StrategyRaster}, nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("Scan rendering failed, trying text strategies")
		}
	}

	report(progress, "Reading document text")
	if text, err := LibraryPDFText(data); err == nil && p.accept(text) {
		return &Result{Kind: KindText, Text: text, Strategy: StrategyLibrary}, nil
	} else if err != nil {
		log.Debug().Err(err).Msg("In-memory PDF extraction failed")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(progress, "Retrying with alternate reader")
	if text, err := TempfilePDFText(data); err == nil && p.accept(text) {
		return &Result{Kind: KindText, Text: text, Strategy: StrategyTempfileLibrary}, nil
	} else if err != nil {
		log.Debug().Err(err).Msg("Tempfile PDF extraction failed")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Library readers found nothing. A valid but textless PDF is usually a
	// scan; render pages for vision models instead of failing.
	if p.rasterizer != nil && isValidPDF(data) {
		report(progress, "No embedded text found, rendering pages as images")
		pages, err := p.rasterizer.Render(ctx, data, progress)
		if err == nil && len(pages) > 0 {
			return &Result{Kind: KindImages, Pages: pages, Strategy: StrategyRaster}, nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("Page rendering failed, falling back to raw scan")
		}
	}

	return p.rawScanOnly(data)
}

func (p *Pipeline) rawScanOnly(data []byte) (*Result, error) {
	if text := ScanPDF(data, DefaultThresholds()); p.accept(text) {
		return &Result{Kind: KindText, Text: text, Strategy: StrategyRawScan}, nil
	}
	if text := ScanPDF(data, RelaxedThresholds()); p.accept(text) {
		return &Result{Kind: KindText, Text: text, Strategy: StrategyAggressiveScan}, nil
	}
	return nil, failf(CodeExhausted,
		"The file appears to contain no extractable text. Try converting it to DOCX or exporting a text version.",
		"all extraction strategies produced no readable text")
}

func (p *Pipeline) extractDocx(data []byte, progress Progress) (*Result, error) {
	report(progress, "Reading document text")
	text, err := ScanDocx(data)
	if err != nil {
		return nil, failf(CodeCorrupt, "Re-save the file in Word and upload it again.", "scan docx: %v", err)
	}
	if !p.accept(text) {
		return nil, failf(CodeExhausted, "The document contains no readable text. If it holds only images, export it to PDF instead.", "docx yielded no readable text")
	}
	return &Result{Kind: KindText, Text: text, Strategy: StrategyOOXML}, nil
}

func (p *Pipeline) extractPptx(data []byte, progress Progress) (*Result, error) {
	report(progress, "Reading slide text")
	text, err := ScanPptx(data)
	if err != nil {
		return nil, failf(CodeCorrupt, "Re-save the file in PowerPoint and upload it again.", "scan pptx: %v", err)
	}
	if !p.accept(text) {
		return nil, failf(CodeExhausted, "The slides contain no readable text. Export the deck to PDF and retry.", "pptx yielded no readable text")
	}
	return &Result{Kind: KindText, Text: text, Strategy: StrategyOOXML}, nil
}

func (p *Pipeline) extractKeynote(ctx context.Context, data []byte, progress Progress) (*Result, error) {
	report(progress, "Looking for embedded preview")
	pdfData, err := KeynotePreviewPDF(data)
	if err != nil {
		return nil, failf(CodeUnsupported, "Export the presentation to PDF or PowerPoint in Keynote and upload that instead.", "keynote preview: %v", err)
	}
	res, err := p.extractPDF(ctx, pdfData, progress)
	if err != nil {
		return nil, err
	}
	res.Strategy = StrategyKeynotePreview
	return res, nil
}

func (p *Pipeline) extractLegacy(ctx context.Context, doc Document, progress Progress) (*Result, error) {
	if p.converter == nil {
		return nil, failf(CodeEnvironment, "Legacy Office conversion is not available. Save the file as DOCX or PDF and retry.", "no converter configured for %q", doc.Filename)
	}
	report(progress, "Converting legacy Office document")
	pdfData, err := p.converter.ConvertToPDF(ctx, doc.Data, doc.Filename)
	if err != nil {
		return nil, failf(CodeEnvironment, "Conversion failed. Save the file as DOCX or PDF and upload that instead.", "convert %q to pdf: %v", doc.Filename, err)
	}
	res, err := p.extractPDF(ctx, pdfData, progress)
	if err != nil {
		return nil, err
	}
	res.Strategy = StrategyConvertedPDF
	return res, nil
}

func (p *Pipeline) extractPlainText(data []byte) (*Result, error) {
	text := strings.TrimSpace(string(data))
	if !p.accept(text) {
		return nil, failf(CodeExhausted, "The file contains too little readable text to process.", "plain text file yielded no readable text")
	}
	return &Result{Kind: KindText, Text: text, Strategy: StrategyPlainText}, nil
}

// accept is the gate every strategy output passes before winning: long
// enough, readable, and not dominated by format syntax.
func (p *Pipeline) accept(text string) bool {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < p.cfg.MinTextLen {
		return false
	}
	if IsStructuralNoise(text) {
		return false
	}
	return IsReadable(text, DefaultThresholds())
}

// declaresPDF reports whether the upload metadata claims the document is a
// PDF, by extension or by declared content type.
func declaresPDF(doc Document) bool {
	return strings.EqualFold(filepath.Ext(doc.Filename), ".pdf") || doc.MIME == "application/pdf"
}

// trimToPDFHeader drops leading junk before a %PDF marker found within the
// scan window. Returns the input unchanged when no marker is found.
func trimToPDFHeader(data []byte, window int) []byte {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return data
	}
	if window > len(data) {
		window = len(data)
	}
	if idx := bytes.Index(data[:window], []byte("%PDF")); idx > 0 {
		return data[idx:]
	}
	return data
}

func isValidPDF(data []byte) bool {
	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		log.Debug().Err(err).Msg("PDF validation failed")
		return false
	}
	return true
}

// PageCount returns the page count of a PDF, 0 when it cannot be determined.
func PageCount(data []byte) int {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0
	}
	return n
}

func report(progress Progress, msg string) {
	if progress != nil {
		progress(msg)
	}
}
