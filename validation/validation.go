package validation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"gif-proxy/config"
	"gif-proxy/pool"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CropBox is a crop rectangle in source pixels, right and bottom exclusive.
type CropBox struct {
	Left, Top, Right, Bottom int
}

func (b CropBox) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", b.Left, b.Top, b.Right, b.Bottom)
}

type ImageContext struct {
	Url string

	// Quality is the webp quality, 0 means the configured default.
	Quality int

	Width  int
	Height int

	Crop           *CropBox
	Rotate         int
	FlipVertical   bool
	FlipHorizontal bool
	Grayscale      bool
	Cover          bool

	// Format is the requested output extension (".webp", ".jpg"), empty to keep the source format.
	Format string

	Hostname string
}

// HasOperations reports whether any gifsicle operation was requested.
// Rotations other than 90, 180 and 270 are ignored by the engine and do not count.
func (c *ImageContext) HasOperations() bool {
	rotates := c.Rotate == 90 || c.Rotate == 180 || c.Rotate == 270
	return c.Width > 0 || c.Height > 0 || c.Crop != nil || rotates ||
		c.FlipVertical || c.FlipHorizontal || c.Grayscale || c.Cover
}

func (c *ImageContext) String() string {
	crop := ""
	if c.Crop != nil {
		crop = c.Crop.String()
	}
	return fmt.Sprintf("quality=%d;width=%d;height=%d;crop=%s;rotate=%d;fv=%t;fh=%t;gray=%t;cover=%t;format=%s",
		c.Quality, c.Width, c.Height, crop, c.Rotate, c.FlipVertical, c.FlipHorizontal, c.Grayscale, c.Cover, c.Format)
}

// PathParams holds the parsed parameters from the URL path
type PathParams struct {
	Quality        int
	Width          int
	Height         int
	Crop           *CropBox
	Rotate         int
	FlipVertical   bool
	FlipHorizontal bool
	Grayscale      bool
	Cover          bool
	Format         string
	Signature      string
	Token          string
	EncodedURL     string
}

var flagParams = map[string]func(*PathParams){
	"webp":  func(p *PathParams) { p.Format = ".webp" },
	"jpg":   func(p *PathParams) { p.Format = ".jpg" },
	"fv":    func(p *PathParams) { p.FlipVertical = true },
	"fh":    func(p *PathParams) { p.FlipHorizontal = true },
	"gray":  func(p *PathParams) { p.Grayscale = true },
	"cover": func(p *PathParams) { p.Cover = true },
}

func isParam(part string) bool {
	if strings.Contains(part, ":") {
		return true
	}
	_, ok := flagParams[part]
	return ok
}

// ParsePathParams extracts parameters from the URL path
// Expected format: /images/q:80/w:500/h:300/c:0,0,100,50/r:90/fv/fh/gray/cover/webp/sig:abc123/{base64-url}
// Unknown keys and out of range numbers are ignored; a malformed crop box is an error.
func ParsePathParams(pathParams string) (*PathParams, error) {
	params := &PathParams{}

	trimmed := strings.Trim(pathParams, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("no path parameters found")
	}
	parts := strings.Split(trimmed, "/")

	// the last part is the encoded URL unless it looks like a parameter
	processParts := parts
	if lastPart := parts[len(parts)-1]; !isParam(lastPart) {
		params.EncodedURL = lastPart
		processParts = parts[:len(parts)-1]
	}

	for _, part := range processParts {
		if set, ok := flagParams[part]; ok {
			set(params)
			continue
		}

		key, value, found := strings.Cut(part, ":")
		if !found {
			continue
		}

		switch key {
		case "q", "quality":
			if q, err := strconv.Atoi(value); err == nil && q >= 1 && q <= 100 {
				params.Quality = q
			}
		case "w", "width":
			if w, err := strconv.Atoi(value); err == nil && w > 0 {
				params.Width = w
			}
		case "h", "height":
			if h, err := strconv.Atoi(value); err == nil && h > 0 {
				params.Height = h
			}
		case "c", "crop":
			crop, err := ParseCropBox(value)
			if err != nil {
				return nil, err
			}
			params.Crop = crop
		case "r", "rotate":
			if r, err := strconv.Atoi(value); err == nil {
				params.Rotate = r
			}
		case "f", "format":
			params.Format = normalizeFormat(value)
		case "sig", "signature":
			params.Signature = value
		case "t", "token":
			params.Token = value
		}
	}

	return params, nil
}

// ParseCropBox parses "left,top,right,bottom".
func ParseCropBox(value string) (*CropBox, error) {
	fields := strings.Split(value, ",")
	if len(fields) != 4 {
		return nil, fmt.Errorf("crop must have 4 comma separated values, got %q", value)
	}

	var n [4]int
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid crop value %q", f)
		}
		n[i] = v
	}

	box := &CropBox{Left: n[0], Top: n[1], Right: n[2], Bottom: n[3]}
	if box.Right <= box.Left || box.Bottom <= box.Top {
		return nil, fmt.Errorf("crop box %s is empty", box)
	}
	return box, nil
}

func normalizeFormat(value string) string {
	switch strings.ToLower(strings.TrimPrefix(value, ".")) {
	case "webp":
		return ".webp"
	case "jpg", "jpeg":
		return ".jpg"
	case "gif":
		return ".gif"
	}
	return ""
}

// DecodeURL decodes a base64 URL-safe encoded URL, with or without padding.
func DecodeURL(encodedURL string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encodedURL, "="))
	if err != nil {
		return "", fmt.Errorf("failed to decode URL: %w", err)
	}
	return string(decoded), nil
}

func compareHmac(url, providedSignature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(url))
	expectedMAC := mac.Sum(nil)

	providedMAC, err := hex.DecodeString(providedSignature)
	if err != nil {
		return false
	}

	return hmac.Equal(expectedMAC, providedMAC)
}

// ProcessImageUploadFromPath processes image upload parameters from path.
// Uploads need the configured token; they are disabled when no token is set.
func ProcessImageUploadFromPath(logger *zap.Logger, pathParams string, config *config.Config) (bool, int, *ImageContext, error) {
	params, err := ParsePathParams(pathParams)
	if err != nil {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("invalid path parameters: %w", err)
	}

	if config.Token == "" {
		return false, fiber.StatusForbidden, nil, fmt.Errorf("uploads are disabled")
	}
	if !hmac.Equal([]byte(params.Token), []byte(config.Token)) {
		logger.Debug("upload rejected", zap.String("reason", "invalid token"))
		return false, fiber.StatusForbidden, nil, fmt.Errorf("invalid token")
	}

	return true, fiber.StatusOK, imageContext(params, "", "", config), nil
}

// ProcessImageContextFromPath processes image context from path parameters.
// When an HMAC key is configured every request must carry a signature over the source URL.
func ProcessImageContextFromPath(logger *zap.Logger, pathParams string, config *config.Config, origins *pool.OriginPolicy) (bool, int, *ImageContext, error) {
	params, err := ParsePathParams(pathParams)
	if err != nil {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("invalid path parameters: %w", err)
	}

	if params.EncodedURL == "" {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("url is required")
	}
	urlParam, err := DecodeURL(params.EncodedURL)
	if err != nil {
		return false, fiber.StatusBadRequest, nil, err
	}

	return checkSource(logger, params, urlParam, config, origins)
}

// ProcessImageContext reads the same parameters from the query string with a plain url.
func ProcessImageContext(logger *zap.Logger, c *fiber.Ctx, config *config.Config, origins *pool.OriginPolicy) (bool, int, *ImageContext, error) {
	// fiber strings are only valid inside the handler
	urlParam := strings.Clone(c.Query("url"))
	if urlParam == "" {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("url is required")
	}

	params := &PathParams{
		Width:          c.QueryInt("width", 0),
		Height:         c.QueryInt("height", 0),
		Rotate:         c.QueryInt("rotate", 0),
		FlipVertical:   c.QueryBool("flipVertical", false),
		FlipHorizontal: c.QueryBool("flipHorizontal", false),
		Grayscale:      c.QueryBool("grayscale", false),
		Cover:          c.QueryBool("cover", false),
		Format:         normalizeFormat(c.Query("format")),
		Signature:      c.Query("signature"),
	}

	quality := c.QueryInt("quality", 0)
	if quality < 0 || quality > 100 {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("quality must be between 1 and 100")
	}
	params.Quality = quality

	if params.Width < 0 || params.Height < 0 {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("width and height must not be negative")
	}

	if crop := c.Query("crop"); crop != "" {
		box, err := ParseCropBox(crop)
		if err != nil {
			return false, fiber.StatusBadRequest, nil, err
		}
		params.Crop = box
	}

	return checkSource(logger, params, urlParam, config, origins)
}

func checkSource(logger *zap.Logger, params *PathParams, urlParam string, config *config.Config, origins *pool.OriginPolicy) (bool, int, *ImageContext, error) {
	if config.HmacKey != "" {
		if params.Signature == "" {
			return false, fiber.StatusForbidden, nil, fmt.Errorf("signature is required")
		}
		if !compareHmac(urlParam, params.Signature, config.HmacKey) {
			return false, fiber.StatusForbidden, nil, fmt.Errorf("invalid signature")
		}
	} else if params.Signature != "" {
		return false, fiber.StatusForbidden, nil, fmt.Errorf("hmac key is not set")
	}

	validOrigin, hostname := origins.Allow(urlParam)
	if !validOrigin {
		logger.Debug("origin rejected", zap.String("url", urlParam), zap.String("hostname", hostname))
		return false, fiber.StatusForbidden, nil, fmt.Errorf("url is not allowed")
	}

	return true, fiber.StatusOK, imageContext(params, urlParam, hostname, config), nil
}

func imageContext(params *PathParams, url, hostname string, config *config.Config) *ImageContext {
	format := params.Format
	if format == "" && config.Webp {
		format = ".webp"
	}

	return &ImageContext{
		Url:            url,
		Quality:        params.Quality,
		Width:          params.Width,
		Height:         params.Height,
		Crop:           params.Crop,
		Rotate:         params.Rotate,
		FlipVertical:   params.FlipVertical,
		FlipHorizontal: params.FlipHorizontal,
		Grayscale:      params.Grayscale,
		Cover:          params.Cover,
		Format:         format,
		Hostname:       hostname,
	}
}

// ValidateFileSize checks if the file size is within acceptable limits
func ValidateFileSize(size int64, maxSizeMB int) error {
	if maxSizeMB <= 0 {
		return nil // No limit set
	}

	maxSizeBytes := int64(maxSizeMB) * 1024 * 1024
	if size > maxSizeBytes {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d MB", size, maxSizeMB)
	}

	return nil
}

// ValidateContentLength checks Content-Length header if present
func ValidateContentLength(contentLength string, maxSizeMB int) error {
	if contentLength == "" || maxSizeMB <= 0 {
		return nil
	}

	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid content length: %s", contentLength)
	}

	return ValidateFileSize(size, maxSizeMB)
}
