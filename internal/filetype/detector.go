package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Class groups MIME types by how the extraction pipeline must treat them.
type Class string

const (
	ClassPDF          Class = "pdf"
	ClassDocx         Class = "docx"
	ClassPptx         Class = "pptx"
	ClassKeynote      Class = "keynote"
	ClassLegacyOffice Class = "legacy_office" // .doc/.ppt/.odt etc, need PDF conversion
	ClassText         Class = "text"
	ClassImage        Class = "image"
	ClassUnsupported  Class = "unsupported"
)

// Info describes a sniffed document.
type Info struct {
	MIMEType    string
	Extension   string
	Class       Class
	Supported   bool
	Description string
}

// Detector sniffs document types from magic bytes, with extension overrides
// for container formats (zip, OLE) that hide the real type.
type Detector struct{}

func New() *Detector { return &Detector{} }

// Detect classifies a byte buffer. The filename is only consulted to
// disambiguate zip/OLE containers; the buffer decides everything else.
func (d *Detector) Detect(data []byte, filename string) (*Info, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	mtype := mimetype.Detect(data)
	mimeType := mtype.String()
	extension := mtype.Extension()
	ext := strings.ToLower(filepath.Ext(filename))

	log.Debug().Str("mime", mimeType).Str("ext", ext).Str("file", filename).Msg("detected file type")

	// Modern Office formats and Keynote bundles are zip archives. mimetype
	// recognises docx/pptx by inner structure, but files produced by some
	// exporters come through as bare application/zip.
	if mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip") {
		switch ext {
		case ".docx":
			mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
			extension = ".docx"
		case ".pptx":
			mimeType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
			extension = ".pptx"
		case ".key":
			mimeType = "application/vnd.apple.keynote"
			extension = ".key"
		case ".odt":
			mimeType = "application/vnd.oasis.opendocument.text"
			extension = ".odt"
		case ".odp":
			mimeType = "application/vnd.oasis.opendocument.presentation"
			extension = ".odp"
		default:
			log.Warn().Str("ext", ext).Msg("zip container with unrecognized extension")
		}
	}

	// Legacy Office formats share the OLE/CFB container signature.
	if mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb" {
		switch ext {
		case ".doc":
			mimeType = "application/msword"
			extension = ".doc"
		case ".ppt":
			mimeType = "application/vnd.ms-powerpoint"
			extension = ".ppt"
		case ".xls":
			mimeType = "application/vnd.ms-excel"
			extension = ".xls"
		default:
			log.Warn().Str("ext", ext).Msg("OLE storage with unrecognized extension")
		}
	}

	info := &Info{MIMEType: mimeType, Extension: extension}
	d.classify(info)
	return info, nil
}

func (d *Detector) classify(info *Info) {
	mimeType := info.MIMEType

	switch {
	case mimeType == "application/pdf":
		info.Class = ClassPDF
		info.Supported = true
		info.Description = "PDF document"

	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		info.Class = ClassDocx
		info.Supported = true
		info.Description = "Microsoft Word document"

	case mimeType == "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		info.Class = ClassPptx
		info.Supported = true
		info.Description = "Microsoft PowerPoint presentation"

	case mimeType == "application/vnd.apple.keynote":
		info.Class = ClassKeynote
		info.Supported = true
		info.Description = "Apple Keynote presentation"

	case mimeType == "application/msword",
		mimeType == "application/vnd.ms-powerpoint",
		mimeType == "application/vnd.ms-excel",
		mimeType == "application/rtf",
		mimeType == "application/vnd.oasis.opendocument.text",
		mimeType == "application/vnd.oasis.opendocument.presentation":
		info.Class = ClassLegacyOffice
		info.Supported = true
		info.Description = "Office document (needs PDF conversion)"

	case strings.HasPrefix(mimeType, "text/"),
		mimeType == "application/json",
		mimeType == "application/xml":
		info.Class = ClassText
		info.Supported = true
		info.Description = "Plain text document"

	case strings.HasPrefix(mimeType, "image/"):
		info.Class = ClassImage
		info.Supported = true
		info.Description = "Image file"

	default:
		info.Class = ClassUnsupported
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}

// RequiresConversion reports whether a document must be converted to PDF
// before the extraction chain can handle it.
func (d *Detector) RequiresConversion(info *Info) bool {
	return info.Class == ClassLegacyOffice
}
