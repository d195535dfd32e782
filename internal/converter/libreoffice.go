// Package converter turns legacy Office documents into PDF using a headless
// LibreOffice invocation.
package converter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrPasswordProtected reports a document LibreOffice cannot open without a
// password.
var ErrPasswordProtected = fmt.Errorf("document is password protected")

// LibreOffice converts documents via one-shot headless invocations. Each
// conversion runs with its own user profile directory so parallel calls do
// not fight over the profile lock.
type LibreOffice struct {
	timeout   time.Duration
	semaphore chan struct{}
}

// NewLibreOffice builds a converter limited to maxWorkers concurrent
// conversions.
func NewLibreOffice(maxWorkers int, timeout time.Duration) *LibreOffice {
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &LibreOffice{timeout: timeout, semaphore: make(chan struct{}, maxWorkers)}
}

// Available reports whether the libreoffice binary is on PATH.
func (l *LibreOffice) Available() bool {
	_, err := exec.LookPath("libreoffice")
	return err == nil
}

// ConvertToPDF converts document bytes to PDF bytes. The filename supplies
// the extension LibreOffice needs to pick an import filter.
func (l *LibreOffice) ConvertToPDF(ctx context.Context, data []byte, filename string) ([]byte, error) {
	select {
	case l.semaphore <- struct{}{}:
		defer func() { <-l.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	workDir, err := os.MkdirTemp("", "convert-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".doc"
	}
	inputPath := filepath.Join(workDir, "input"+ext)
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write input file: %w", err)
	}

	// Separate profile per conversion; LibreOffice serializes on a shared one.
	profileDir := filepath.Join(workDir, "profile-"+uuid.New().String())

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "libreoffice",
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", workDir,
		inputPath,
	)
	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("conversion timed out after %v", l.timeout)
		}
		if looksPasswordProtected(output) {
			return nil, ErrPasswordProtected
		}
		return nil, fmt.Errorf("libreoffice conversion failed: %v: %s", err, strings.TrimSpace(string(output)))
	}

	outputPath := filepath.Join(workDir, "input.pdf")
	pdfData, err := os.ReadFile(outputPath)
	if err != nil {
		if looksPasswordProtected(output) {
			return nil, ErrPasswordProtected
		}
		return nil, fmt.Errorf("conversion produced no output: %w", err)
	}
	if len(pdfData) == 0 {
		return nil, fmt.Errorf("conversion produced empty output")
	}

	log.Info().Str("file", filename).Int("pdf_size", len(pdfData)).Dur("duration", time.Since(start)).Msg("Converted document to PDF")
	return pdfData, nil
}

func looksPasswordProtected(output []byte) bool {
	s := strings.ToLower(string(output))
	return strings.Contains(s, "password") || strings.Contains(s, "encrypted") || strings.Contains(s, "protected")
}
