package storage

import (
	"bytes"
	"fmt"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Normalizer re-encodes answer photos before they are archived: EXIF
// orientation is applied, oversized scans are shrunk to fit MaxDimension and
// the result is stored as lossy WebP.
type Normalizer struct {
	Enabled      bool
	Quality      float32
	MaxDimension int
}

// Normalize returns the bytes and MIME type to archive. When disabled the
// input is returned unchanged.
func (n Normalizer) Normalize(data []byte, mimeType string) ([]byte, string, error) {
	if !n.Enabled {
		return data, mimeType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", mimeType, err)
	}

	if n.MaxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > n.MaxDimension || b.Dy() > n.MaxDimension {
			img = imaging.Fit(img, n.MaxDimension, n.MaxDimension, imaging.Lanczos)
		}
	}

	quality := n.Quality
	if quality <= 0 {
		quality = 80
	}

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, &webp.Options{Lossless: false, Quality: quality}); err != nil {
		return nil, "", fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), "image/webp", nil
}
