// Package pdftag inspects a PDF's document catalog for structure tags.
package pdftag

import (
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Detector reports whether a PDF already carries a structure tree, so the
// pipeline can skip redundant OCR on tagged documents.
//
// By default the detector fails open: a document that cannot be opened or
// parsed is reported as untagged, because the caller's policy is to run OCR
// when uncertain. Set StrictErrors to surface inspection errors instead.
type Detector struct {
	StrictErrors bool
}

// IsTagged opens the document read-only and looks for a StructTreeRoot entry
// in the catalog. The document is never mutated.
func (d Detector) IsTagged(path string) (bool, error) {
	tagged, err := inspect(path)
	if err != nil {
		if d.StrictErrors {
			return false, fmt.Errorf("inspect %s: %w", path, err)
		}
		return false, nil
	}
	return tagged, nil
}

func inspect(path string) (tagged bool, err error) {
	// The parser panics on some malformed documents; treat that the same as
	// a parse error so the fail-open policy applies.
	defer func() {
		if r := recover(); r != nil {
			tagged = false
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	root := r.Trailer().Key("Root")
	if root.IsNull() {
		return false, errors.New("document catalog missing")
	}
	return !root.Key("StructTreeRoot").IsNull(), nil
}
