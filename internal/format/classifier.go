// Package format maps filenames to conversion routes.
package format

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Route selects which pre-conversion a document needs before the PDF/A stage.
type Route string

const (
	RoutePDF    Route = "pdf"
	RouteOffice Route = "office"
	RouteImage  Route = "image"
)

var officeExts = map[string]struct{}{
	".docx": {},
	".pptx": {},
	".xlsx": {},
}

var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".tiff": {},
	".tif":  {},
	".bmp":  {},
	".gif":  {},
}

// UnsupportedError is returned for filenames whose extension has no route.
type UnsupportedError struct {
	Ext       string
	Supported []string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported file extension %q (supported: %s)", e.Ext, strings.Join(e.Supported, ", "))
}

// Classify returns the normalized lowercase extension and route for a
// filename. It is a pure function of the name; the file is never opened.
func Classify(filename string) (string, Route, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return ext, RoutePDF, nil
	case isOffice(ext):
		return ext, RouteOffice, nil
	case IsImage(ext):
		return ext, RouteImage, nil
	}
	return ext, "", &UnsupportedError{Ext: ext, Supported: SupportedExtensions()}
}

// IsImage reports whether a normalized extension belongs to the image route.
func IsImage(ext string) bool {
	_, ok := imageExts[strings.ToLower(ext)]
	return ok
}

func isOffice(ext string) bool {
	_, ok := officeExts[ext]
	return ok
}

// SupportedExtensions returns the sorted set of recognized extensions.
func SupportedExtensions() []string {
	out := make([]string, 0, len(officeExts)+len(imageExts)+1)
	out = append(out, ".pdf")
	for ext := range officeExts {
		out = append(out, ext)
	}
	for ext := range imageExts {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
