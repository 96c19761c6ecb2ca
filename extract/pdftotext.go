package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// errNoBinary is returned when pdftotext is not installed.
var errNoBinary = errors.New("extract: pdftotext binary not found")

// pdftotext runs "pdftotext -layout <path> -". A missing binary, a
// non-zero exit and empty output are all errors.
func (x *Extractor) pdftotext(ctx context.Context, path string) (string, error) {
	bin, err := exec.LookPath(x.cfg.PDFToText)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNoBinary, err)
	}

	ctx, cancel := context.WithTimeout(ctx, x.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "-layout", path, "-")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("extract: pdftotext: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := out.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("extract: pdftotext produced no text (image-only or protected pdf)")
	}
	return text, nil
}
