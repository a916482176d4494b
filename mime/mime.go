package mime

import (
	"strings"

	"github.com/h2non/filetype"
)

var imageMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/avif",
	"image/heif",
	"image/heic",
}

// transformableMimeTypes are the sources the gif engine can load.
var transformableMimeTypes = []string{
	"image/gif",
	"image/heif",
	"image/heic",
}

var extensions = map[string]string{
	"image/gif":  ".gif",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
	"image/avif": ".avif",
	"image/heif": ".heif",
	"image/heic": ".heic",
}

func IsImageMime(mimeType string) bool {
	for _, imageMimeType := range imageMimeTypes {
		if mimeType == imageMimeType {
			return true
		}
	}

	return false
}

func IsTransformable(mimeType string) bool {
	for _, t := range transformableMimeTypes {
		if mimeType == t {
			return true
		}
	}

	return false
}

// ExtensionFor returns the dotted extension for an image content type, or "".
func ExtensionFor(mimeType string) string {
	return extensions[mimeType]
}

// ContentTypeFor returns the content type for a dotted extension, or "".
func ContentTypeFor(extension string) string {
	extension = strings.ToLower(extension)
	if extension == ".jpeg" {
		extension = ".jpg"
	}
	for mimeType, ext := range extensions {
		if ext == extension {
			return mimeType
		}
	}
	return ""
}

// Sniff detects the content type from magic bytes. It returns "" when the
// type is unknown.
func Sniff(buf []byte) string {
	kind, err := filetype.Match(buf)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// Resolve returns the sniffed type, falling back to declared when the bytes
// are not recognized and declared is an image type.
func Resolve(declared string, buf []byte) string {
	if sniffed := Sniff(buf); sniffed != "" {
		return sniffed
	}
	if IsImageMime(declared) {
		return declared
	}
	return ""
}
