package routes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gif-proxy/engine"
	"gif-proxy/mime"
	"gif-proxy/validation"
)

// transformImage runs the requested operations over src and returns the
// encoded result and its content type.
func (r *ImageRoutes) transformImage(ctx context.Context, params *validation.ImageContext, src []byte, mediaType string) ([]byte, string, error) {
	extension := mime.ExtensionFor(mediaType)
	format := params.Format

	if engine.IsHEIF(extension) {
		if params.HasOperations() {
			return nil, "", fmt.Errorf("operations on %s sources: %w", mediaType, engine.ErrUnsupported)
		}
		if format == "" || format == ".webp" {
			format = ".jpg"
		}
		if !engine.IsJPEG(format) {
			return nil, "", fmt.Errorf("convert %s to %s: %w", mediaType, format, engine.ErrUnsupported)
		}
	}
	if format == "" {
		format = extension
	}

	opts := []engine.Option{
		engine.WithLogger(r.Logger),
		engine.WithRequest(engine.Request{URL: params.Url}),
	}
	if r.EngineMetrics != nil {
		opts = append(opts, engine.WithRecorder(r.EngineMetrics))
	}
	e := engine.New(r.Config.Engine(), opts...)

	if err := e.Load(ctx, src, extension); err != nil {
		return nil, "", err
	}
	if w, h := e.Size(); w > 0 {
		r.Logger.Debug("source loaded", zap.Int("width", w), zap.Int("height", h), zap.Bool("animated", e.IsMultiple()), zap.String("url", params.Url))
	}

	if params.Cover {
		if err := e.ExtractCover(ctx); err != nil {
			return nil, "", err
		}
	}
	if c := params.Crop; c != nil {
		if err := e.Crop(ctx, c.Left, c.Top, c.Right, c.Bottom); err != nil {
			return nil, "", err
		}
	}
	e.Resize(params.Width, params.Height)
	e.Rotate(params.Rotate)
	if params.FlipVertical {
		e.FlipVertically()
	}
	if params.FlipHorizontal {
		e.FlipHorizontally()
	}
	if params.Grayscale {
		e.ConvertToGrayscale()
	}

	out, err := e.Read(ctx, format, params.Quality)
	if err != nil {
		return nil, "", err
	}
	return out, mime.ContentTypeFor(format), nil
}
