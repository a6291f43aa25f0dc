package storage

import (
	"errors"
	"sort"
)

// Sentinel errors for answer photo uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Allowed answer photo MIME types and the extension each is stored under.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// IsAllowedMIMEType reports whether answer photos of this type are accepted.
func IsAllowedMIMEType(mimeType string) bool {
	_, ok := allowedMIMETypes[mimeType]
	return ok
}

// AllowedMIMETypes lists the accepted types in a stable order.
func AllowedMIMETypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func extensionFor(mimeType string) string {
	if ext, ok := allowedMIMETypes[mimeType]; ok {
		return ext
	}
	return ".bin"
}
