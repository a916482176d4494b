package engine

import (
	"regexp"
	"strconv"
)

// Sample gifsicle --info output:
//
//	* <stdin> 3 images
//	  logical screen 100x50
//	  global color table [4]
//	  background 0
//	  loop forever
//	  + image #0 100x50
var (
	sizePattern   = regexp.MustCompile(`logical\sscreen\s(\d+)x(\d+)`)
	framesPattern = regexp.MustCompile(`(\d+)\simage`)
)

// maxProbeOutput bounds how much tool output a ParseError carries.
const maxProbeOutput = 256

// Metadata describes the current working buffer.
type Metadata struct {
	Width  int
	Height int
	Frames int
}

// ProbeImageMetadata parses gifsicle --info output.
func ProbeImageMetadata(raw []byte) (Metadata, error) {
	size := sizePattern.FindSubmatch(raw)
	if size == nil {
		return Metadata{}, newParseError("logical screen size", raw)
	}
	frames := framesPattern.FindSubmatch(raw)
	if frames == nil {
		return Metadata{}, newParseError("image count", raw)
	}

	width, err := strconv.Atoi(string(size[1]))
	if err != nil {
		return Metadata{}, newParseError("width", raw)
	}
	height, err := strconv.Atoi(string(size[2]))
	if err != nil {
		return Metadata{}, newParseError("height", raw)
	}
	count, err := strconv.Atoi(string(frames[1]))
	if err != nil {
		return Metadata{}, newParseError("image count", raw)
	}

	return Metadata{Width: width, Height: height, Frames: count}, nil
}

func newParseError(field string, raw []byte) *ParseError {
	if len(raw) > maxProbeOutput {
		raw = raw[:maxProbeOutput]
	}
	return &ParseError{Field: field, Output: string(raw)}
}
