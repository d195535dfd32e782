// Package extract turns uploaded documents into text the AI layer can
// consume, or page images when text extraction is impossible. It runs an
// ordered chain of strategies per format and never hands empty or garbage
// text back to the caller.
package extract

import "fmt"

// Document is a source file handed to the pipeline. The pipeline borrows the
// buffer for the duration of the call and never mutates it. MIME is the
// content type declared at upload; it is cross-checked against the sniffed
// bytes, which always win.
type Document struct {
	Data     []byte
	MIME     string
	Filename string
}

// ResultKind discriminates the two output shapes.
type ResultKind string

const (
	KindText   ResultKind = "text"
	KindImages ResultKind = "images"
)

// PageImage is one rasterized page, ordered by PageNumber ascending.
type PageImage struct {
	PageNumber int
	Bytes      []byte
	MIMEType   string
}

// Result is the final pipeline output. Exactly one of Text or Pages is set.
type Result struct {
	Kind     ResultKind
	Text     string
	Pages    []PageImage
	Strategy string // strategy that produced the winning candidate
}

// Progress receives human-readable phase updates ("Extracting text…").
type Progress func(msg string)

// Error codes for structured failures.
const (
	CodeUnsupported = "unsupported_format"
	CodeCorrupt     = "corrupt_input"
	CodeExhausted   = "extraction_exhausted"
	CodeEnvironment = "environment_unavailable"
)

// Error is the only failure shape that crosses the pipeline boundary.
// Hint carries user-actionable remediation ("try exporting to PDF"); internal
// strategy errors never surface individually.
type Error struct {
	Code string
	Hint string
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

func failf(code, hint, format string, args ...any) *Error {
	return &Error{Code: code, Hint: hint, msg: fmt.Sprintf(format, args...)}
}
