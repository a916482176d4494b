package engine

import (
	"bytes"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/h2non/filetype"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Verify reports whether buf decodes as a complete image. GIFs are decoded
// frame by frame so a truncated animation is rejected.
func Verify(buf []byte) error {
	kind, err := filetype.Match(buf)
	if err != nil {
		return fmt.Errorf("detect image type: %w", err)
	}

	r := bytes.NewReader(buf)
	switch kind.MIME.Value {
	case "image/gif":
		_, err = gif.DecodeAll(r)
	case "image/jpeg":
		_, err = jpeg.Decode(r)
	case "image/png":
		_, err = png.Decode(r)
	case "image/bmp":
		_, err = bmp.Decode(r)
	case "image/tiff":
		_, err = tiff.Decode(r)
	case "image/webp":
		_, err = webp.Decode(r, &decoder.Options{})
	default:
		return fmt.Errorf("unrecognized image data (%d bytes)", len(buf))
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", kind.Extension, err)
	}
	return nil
}
