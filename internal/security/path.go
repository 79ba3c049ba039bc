package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrPathTraversal  = errors.New("path traversal detected")
	ErrAbsolutePath   = errors.New("absolute paths are not allowed")
	ErrReservedName   = errors.New("reserved filename not allowed")
	ErrLeadingHyphen  = errors.New("filename cannot start with hyphen")
	ErrImageExtension = errors.New("preview files must end in .png, .jpg, .jpeg or .gif")

	windowsReservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}

	imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}
)

// ValidateSavePath accepts relative paths that stay inside the working
// directory and avoid reserved or flag-like names.
func ValidateSavePath(path string) error {
	if filepath.IsAbs(path) {
		return ErrAbsolutePath
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") || strings.Contains(path, "..") {
		return ErrPathTraversal
	}

	base := filepath.Base(cleaned)
	nameWithoutExt := strings.TrimSuffix(strings.ToLower(base), filepath.Ext(base))
	if windowsReservedNames[nameWithoutExt] {
		return ErrReservedName
	}

	if strings.HasPrefix(base, "-") {
		return ErrLeadingHyphen
	}
	return nil
}

// ValidatePreviewPath is ValidateSavePath plus an image file extension.
func ValidatePreviewPath(path string) error {
	if err := ValidateSavePath(path); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(imageExtensions, ext) {
		return fmt.Errorf("%w: %q", ErrImageExtension, filepath.Base(path))
	}
	return nil
}

// SanitizeFilename turns free text (a prompt, say) into a safe file name.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", " ", "_",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	sanitized := replacer.Replace(strings.TrimSpace(name))
	sanitized = strings.TrimLeft(sanitized, ".-")
	sanitized = strings.TrimRight(sanitized, ". ")

	nameWithoutExt := strings.TrimSuffix(strings.ToLower(sanitized), filepath.Ext(sanitized))
	if windowsReservedNames[nameWithoutExt] {
		sanitized = sanitized + "_"
	}

	if sanitized == "" {
		sanitized = "file"
	}
	return sanitized
}
