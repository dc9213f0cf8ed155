// Package security checks user-supplied file names before they reach the
// content store.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedImage is returned for image names outside AllowedImageExtensions.
type ErrUnsupportedImage string

func (e ErrUnsupportedImage) Error() string {
	return fmt.Sprintf("unsupported image type %q", string(e))
}

// SanitizeFilename removes dangerous path sequences and normalizes filename
func SanitizeFilename(filename string) string {
	if filename == "" {
		return "file"
	}

	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	filename = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, filename)

	if len(filename) > 255 {
		filename = filename[:255]
	}

	if filename == "" || filename == "." || filename == ".." || filename == "/" {
		filename = "file"
	}

	return filename
}

// ValidateExtension checks if file extension is in whitelist
func ValidateExtension(filename string, allowed []string) bool {
	if filename == "" || len(allowed) == 0 {
		return false
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, a := range allowed {
		if strings.TrimPrefix(strings.ToLower(a), ".") == ext {
			return true
		}
	}
	return false
}

// ImageName sanitizes an uploaded image name and checks its extension.
func ImageName(name string) (string, error) {
	clean := SanitizeFilename(name)
	if !ValidateExtension(clean, AllowedImageExtensions) {
		return "", ErrUnsupportedImage(filepath.Ext(clean))
	}
	return clean, nil
}
