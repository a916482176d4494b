package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdmime "mime"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"gif-proxy/client"
	"gif-proxy/config"
	"gif-proxy/metrics"
	"gif-proxy/mime"
	"gif-proxy/pool"
	"gif-proxy/storage"
	"gif-proxy/validation"
)

const (
	cachePlaceResponseHandler = "response-handler"
	cachePlaceS3Cache         = "s3cache"
)

// ImageRoutes holds everything the image handlers need.
type ImageRoutes struct {
	Logger        *zap.Logger
	Config        *config.Config
	Cache         *storage.ResultCache
	S3            *storage.S3Cache
	Origins       *pool.OriginPolicy
	Counters      *metrics.Metrics
	Performance   *metrics.PerformanceMetrics
	EngineMetrics *metrics.Engine
}

// RegisterImageRoutes sets up image processing routes
func RegisterImageRoutes(app *fiber.App, r *ImageRoutes) {
	// query route: /images?url=https://...&width=100&format=webp
	app.Get("/images", r.handleImageQuery)

	// path route: /images/q:80/w:100/r:90/webp/{base64-encoded-url}
	app.Get("/images/*", r.handleImageRequest)

	// upload route: /images/t:{token}/w:100/webp with a multipart "image" field
	app.Post("/images/*", r.handleImageUpload)
}

//#region handleImageRequest

func (r *ImageRoutes) handleImageRequest(c *fiber.Ctx) error {
	pathParams := c.Params("*")
	r.Logger.Info("image request received", zap.String("pathParams", pathParams), zap.String("method", c.Method()), zap.String("remote_ip", c.IP()))

	ok, status, params, err := validation.ProcessImageContextFromPath(r.Logger, pathParams, r.Config, r.Origins)
	if !ok {
		r.Logger.Error("failed to process image context from path", zap.String("pathParams", pathParams), zap.Int("status", status), zap.Error(err))
		return r.fail(c, status, err.Error())
	}

	return r.processImageResponse(c, params)
}

func (r *ImageRoutes) handleImageQuery(c *fiber.Ctx) error {
	ok, status, params, err := validation.ProcessImageContext(r.Logger, c, r.Config, r.Origins)
	if !ok {
		r.Logger.Error("failed to process image context from query", zap.Int("status", status), zap.Error(err))
		return r.fail(c, status, err.Error())
	}

	return r.processImageResponse(c, params)
}

//#endregion

//#region processImageResponse

// processImageResponse serves from the caches or fetches and transforms the source.
func (r *ImageRoutes) processImageResponse(c *fiber.Ctx, params *validation.ImageContext) error {
	key := cacheKey(params.Url, params)

	if value, ok := r.Cache.Get(key); ok {
		r.Counters.Served("image", params.Hostname, params.Url, true)
		c.Set("X-Cache-Place", cachePlaceResponseHandler)
		return r.send(c, value)
	}

	if value, err := r.S3.Get(c.UserContext(), key); err != nil {
		r.Logger.Warn("s3 cache lookup failed", zap.Error(err), zap.String("url", params.Url))
	} else if value != nil {
		r.Counters.Served("image", params.Hostname, params.Url, true)
		r.Cache.Set(key, *value)
		c.Set("X-Cache-Place", cachePlaceS3Cache)
		return r.send(c, *value)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), r.Config.FetchTimeout)
	defer cancel()

	done := metrics.TimeHTTPRequest(params.Hostname, r.Performance)
	src, err := client.Fetch(ctx, params.Url, int64(r.Config.MaxSourceSizeMB)<<20)
	done()
	if err != nil {
		r.Logger.Error("failed to fetch image", zap.Error(err), zap.String("url", params.Url), zap.String("hostname", params.Hostname))
		return r.fail(c, statusFor(err), "failed to fetch image")
	}

	value, status, err := r.render(c.UserContext(), params, src.Body, src.MediaType)
	if err != nil {
		return r.fail(c, status, err.Error())
	}

	r.Cache.Set(key, value)
	if r.S3 != nil && r.S3.Enabled {
		go func() {
			if err := r.S3.Put(context.Background(), key, value.Body, value.ContentType); err != nil {
				r.Logger.Error("failed to store image in S3 cache", zap.Error(err), zap.String("url", params.Url))
			}
		}()
	}

	r.Logger.Info("image served successfully", zap.String("content_type", value.ContentType), zap.String("origin", params.Hostname), zap.String("url", params.Url))
	r.Counters.Served("image", params.Hostname, params.Url, false)
	return r.send(c, value)
}

//#endregion

//#region render

// render checks the source type and transforms it. On failure it returns the response status.
func (r *ImageRoutes) render(ctx context.Context, params *validation.ImageContext, body []byte, declared string) (storage.CacheValue, int, error) {
	mediaType := mime.Resolve(declared, body)
	if !mime.IsImageMime(mediaType) {
		r.Logger.Error("invalid image mime type", zap.String("declared", declared), zap.String("mime_type", mediaType), zap.String("url", params.Url))
		rejected := mediaType
		if rejected == "" {
			rejected = declared
		}
		return storage.CacheValue{}, fiber.StatusForbidden, fmt.Errorf("content type '%s' is not allowed", rejected)
	}
	if !mime.IsTransformable(mediaType) {
		return storage.CacheValue{}, fiber.StatusUnsupportedMediaType, fmt.Errorf("content type '%s' cannot be transformed", mediaType)
	}

	r.Performance.ObserveImageSize(strings.TrimPrefix(mime.ExtensionFor(mediaType), "."), len(body))

	type result struct {
		body        []byte
		contentType string
	}
	res, err := metrics.TimeFunction(func() (result, error) {
		out, contentType, err := r.transformImage(ctx, params, body, mediaType)
		return result{out, contentType}, err
	}, "transform", r.Performance)
	if err != nil {
		status := statusFor(err)
		r.Logger.Error("failed to transform image", zap.Error(err), zap.Int("status", status), zap.String("params", params.String()), zap.String("url", params.Url))
		return storage.CacheValue{}, status, err
	}

	return storage.CacheValue{Body: res.body, ContentType: res.contentType}, fiber.StatusOK, nil
}

//#endregion

//#region handleImageUpload

// handleImageUpload transforms an uploaded image. Requires the token in the path parameters.
func (r *ImageRoutes) handleImageUpload(c *fiber.Ctx) error {
	r.Logger.Info("image upload request received")

	ok, status, params, err := validation.ProcessImageUploadFromPath(r.Logger, c.Params("*"), r.Config)
	if !ok {
		return r.fail(c, status, err.Error())
	}

	if err := validation.ValidateContentLength(c.Get(fiber.HeaderContentLength), r.Config.MaxSourceSizeMB); err != nil {
		return r.fail(c, fiber.StatusRequestEntityTooLarge, err.Error())
	}

	file, err := c.FormFile("image")
	if err != nil {
		return r.fail(c, fiber.StatusBadRequest, "failed to get image file")
	}
	if err := validation.ValidateFileSize(file.Size, r.Config.MaxSourceSizeMB); err != nil {
		return r.fail(c, fiber.StatusRequestEntityTooLarge, err.Error())
	}

	imageFile, err := file.Open()
	if err != nil {
		return r.fail(c, fiber.StatusBadRequest, "failed to open image file")
	}
	defer imageFile.Close()

	body, err := io.ReadAll(imageFile)
	if err != nil {
		return r.fail(c, fiber.StatusInternalServerError, "failed to read image file")
	}

	declared, _, err := stdmime.ParseMediaType(file.Header.Get("Content-Type"))
	if err != nil {
		declared = ""
	}

	value, status, err := r.render(c.UserContext(), params, body, declared)
	if err != nil {
		return r.fail(c, status, err.Error())
	}

	r.Counters.Served("upload", "", "", false)
	return r.send(c, value)
}

//#endregion

func (r *ImageRoutes) send(c *fiber.Ctx, value storage.CacheValue) error {
	c.Set("Content-Type", value.ContentType)
	c.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", r.Config.HTTPCacheTTL))
	return c.Send(value.Body)
}

func (r *ImageRoutes) fail(c *fiber.Ctx, status int, message string) error {
	r.Counters.Failed.WithLabelValues("image", fmt.Sprint(status)).Inc()
	return c.Status(status).SendString(message)
}

// ErrorHandler answers unhandled errors with their status and a plain message.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		} else {
			logger.Error("unhandled error", zap.Error(err), zap.String("path", c.Path()))
		}
		return c.Status(code).SendString(err.Error())
	}
}
