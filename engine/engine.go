// Package engine transforms animated GIF (and HEIF) buffers by queueing
// gifsicle operations and delegating format conversion to external
// transcoders.
//
// An Engine holds one image for the lifetime of one request and is not safe
// for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Tool names as reported in errors and metrics.
const (
	ToolGifsicle  = "gifsicle"
	ToolGif2Webp  = "gif2webp"
	ToolHeif2Jpeg = "heif2jpeg"
)

// Invocation outcomes passed to Recorder.ToolInvocation.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// Config holds the external tool locations and transcode defaults.
type Config struct {
	GifsiclePath  string
	Gif2WebpPath  string
	Heif2JpegPath string

	// Quality is used by Read when the caller passes no quality.
	Quality int

	// Timeout bounds every single tool invocation. Zero disables it.
	Timeout time.Duration

	// TempDir holds transcode temp files, os.TempDir() when empty.
	TempDir string
}

// Request identifies the request an engine works for. Used for diagnostics only.
type Request struct {
	URL string
}

// Recorder receives engine observations.
type Recorder interface {
	// NoOutput is called when a processed buffer fails verification.
	NoOutput()
	ToolInvocation(tool, status string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) NoOutput()                                   {}
func (nopRecorder) ToolInvocation(string, string, time.Duration) {}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

func WithRunner(runner Runner) Option {
	return func(e *Engine) { e.runner = runner }
}

func WithRequest(request Request) Option {
	return func(e *Engine) { e.request = request }
}

// Engine applies queued gifsicle operations to a single image buffer.
type Engine struct {
	cfg      Config
	logger   *zap.Logger
	recorder Recorder
	runner   Runner
	request  Request

	buffer     []byte
	extension  string
	operations []string
	meta       Metadata
	loaded     bool
}

func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		runner:   ExecRunner{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the working buffer and probes its size and frame count.
// HEIF sources are never animated and are not probed.
func (e *Engine) Load(ctx context.Context, buf []byte, extension string) error {
	e.buffer = buf
	e.extension = extension
	e.operations = nil
	e.meta = Metadata{}
	e.loaded = false

	if IsHEIF(extension) {
		e.loaded = true
		return nil
	}

	if err := e.updateImageInfo(ctx); err != nil {
		return err
	}
	e.loaded = true
	return nil
}

func (e *Engine) Size() (width, height int) {
	return e.meta.Width, e.meta.Height
}

func (e *Engine) IsMultiple() bool {
	return e.meta.Frames > 1
}

func (e *Engine) Metadata() Metadata {
	return e.meta
}

func (e *Engine) Extension() string {
	return e.extension
}

// Buffer returns the working buffer as of the last flush.
func (e *Engine) Buffer() []byte {
	return e.buffer
}

// Operations returns a copy of the pending operations.
func (e *Engine) Operations() []string {
	return append([]string(nil), e.operations...)
}

func (e *Engine) Resize(width, height int) {
	var op string
	switch {
	case width == 0 && height == 0:
		return
	case width > 0 && height == 0:
		op = fmt.Sprintf("--resize-width %d", width)
	case height > 0 && width == 0:
		op = fmt.Sprintf("--resize-height %d", height)
	default:
		op = fmt.Sprintf("--resize %dx%d", width, height)
	}
	e.operations = append(e.operations, op)
}

// Crop is applied immediately so later operations see the cropped size.
func (e *Engine) Crop(ctx context.Context, left, top, right, bottom int) error {
	if !e.loaded {
		return ErrNotLoaded
	}
	e.operations = append(e.operations, fmt.Sprintf("--crop %d,%d-%d,%d", left, top, right, bottom))
	if err := e.FlushOperations(ctx); err != nil {
		return err
	}
	return e.updateImageInfo(ctx)
}

// Rotate accepts 90, 180 and 270; any other value is ignored.
func (e *Engine) Rotate(degrees int) {
	switch degrees {
	case 90, 180, 270:
		e.operations = append(e.operations, "--rotate-"+strconv.Itoa(degrees))
	}
}

func (e *Engine) FlipVertically() {
	e.operations = append(e.operations, "--flip-vertical")
}

func (e *Engine) FlipHorizontally() {
	e.operations = append(e.operations, "--flip-horizontal")
}

// ExtractCover reduces the image to its first frame.
func (e *Engine) ExtractCover(ctx context.Context) error {
	if !e.loaded {
		return ErrNotLoaded
	}
	e.operations = append(e.operations, "#0")
	if err := e.FlushOperations(ctx); err != nil {
		return err
	}
	return e.updateImageInfo(ctx)
}

func (e *Engine) ConvertToGrayscale() {
	e.operations = append(e.operations, "--use-colormap gray")
}

// Reorientate does nothing: GIFs carry no EXIF orientation.
func (e *Engine) Reorientate(overrideExif bool) {}

func (e *Engine) DrawRectangle(x, y, width, height int) error {
	return fmt.Errorf("draw rectangle: %w", ErrUnsupported)
}

// FlushOperations runs all pending operations in one gifsicle call and
// replaces the working buffer with its output. On failure the pending
// operations are kept.
func (e *Engine) FlushOperations(ctx context.Context) error {
	if len(e.operations) == 0 {
		return nil
	}
	if !e.loaded {
		return ErrNotLoaded
	}

	args := strings.Split(strings.Join(e.operations, " "), " ")
	out, err := e.run(ctx, ToolGifsicle, e.cfg.GifsiclePath, args, e.buffer)
	if err != nil {
		return err
	}

	e.buffer = out
	e.operations = nil
	return nil
}

// Read returns the image encoded for extension, the source extension when
// empty. Quality applies to webp output; zero means the configured default.
func (e *Engine) Read(ctx context.Context, extension string, quality int) ([]byte, error) {
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	if extension == "" {
		extension = e.extension
	}

	switch {
	case IsWebP(extension):
		if quality <= 0 {
			quality = e.cfg.Quality
		}
		if err := e.FlushOperations(ctx); err != nil {
			return nil, err
		}
		return e.transcode(ctx, ToolGif2Webp, e.cfg.Gif2WebpPath, ".gif", ".webp", func(in, out string) []string {
			return []string{"-q", strconv.Itoa(quality), in, "-o", out}
		})

	case IsHEIF(e.extension) && IsJPEG(extension):
		return e.transcode(ctx, ToolHeif2Jpeg, e.cfg.Heif2JpegPath, ".heif", ".jpg", func(in, out string) []string {
			return []string{in, out}
		})
	}

	if err := e.FlushOperations(ctx); err != nil {
		return nil, err
	}

	if err := Verify(e.buffer); err != nil {
		e.recorder.NoOutput()
		e.logger.Error("invalid gif engine result", zap.String("url", e.request.URL), zap.Error(err))
		return nil, &VerificationError{URL: e.request.URL, Err: err}
	}
	return e.buffer, nil
}

func (e *Engine) updateImageInfo(ctx context.Context) error {
	out, err := e.run(ctx, ToolGifsicle, e.cfg.GifsiclePath, []string{"--info"}, e.buffer)
	if err != nil {
		return err
	}
	meta, err := ProbeImageMetadata(out)
	if err != nil {
		return err
	}
	e.meta = meta
	return nil
}

func (e *Engine) transcode(ctx context.Context, tool, path, inSuffix, outSuffix string, argsFn func(in, out string) []string) ([]byte, error) {
	return withTempFiles(e.cfg.TempDir, e.buffer, inSuffix, outSuffix, e.logger, func(in, out string) error {
		e.logger.Debug("convert", zap.String("tool", tool), zap.String("from", in), zap.String("to", out))
		_, err := e.run(ctx, tool, path, argsFn(in, out), nil)
		return err
	})
}

func (e *Engine) run(ctx context.Context, tool, path string, args []string, stdin []byte) ([]byte, error) {
	parent := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	command := strings.Join(append([]string{path}, args...), " ")
	e.logger.Debug("running external tool", zap.String("tool", tool), zap.String("command", command))

	start := time.Now()
	res, err := e.runner.Run(ctx, path, args, stdin)
	elapsed := time.Since(start)

	switch {
	case err != nil && parent.Err() != nil:
		// the caller gave up, not the tool budget
		e.recorder.ToolInvocation(tool, StatusError, elapsed)
		return nil, fmt.Errorf("run %s: %w", tool, parent.Err())
	case errors.Is(err, context.DeadlineExceeded):
		e.recorder.ToolInvocation(tool, StatusTimeout, elapsed)
		return nil, &TimeoutError{Tool: tool, Command: command, Timeout: e.cfg.Timeout}
	case err != nil:
		e.recorder.ToolInvocation(tool, StatusError, elapsed)
		return nil, fmt.Errorf("run %s: %w", tool, err)
	case res.ExitCode != 0:
		e.recorder.ToolInvocation(tool, StatusFailed, elapsed)
		e.logger.Error("external tool failed",
			zap.String("tool", tool),
			zap.Int("exit_code", res.ExitCode),
			zap.String("command", command),
			zap.String("stderr", res.Stderr),
			zap.String("url", e.request.URL))
		return nil, &ToolError{Tool: tool, ExitCode: res.ExitCode, Command: command, URL: e.request.URL, Stderr: res.Stderr}
	}

	e.recorder.ToolInvocation(tool, StatusOK, elapsed)
	return res.Stdout, nil
}

func IsHEIF(extension string) bool {
	switch strings.ToLower(extension) {
	case ".heif", ".heic":
		return true
	}
	return false
}

func IsWebP(extension string) bool {
	return strings.EqualFold(extension, ".webp")
}

func IsJPEG(extension string) bool {
	switch strings.ToLower(extension) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}
