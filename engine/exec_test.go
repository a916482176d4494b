package engine_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/wader/osleaktest"

	"gif-proxy/engine"
)

func leakChecks(t *testing.T) func() {
	leakFn := leaktest.Check(t)
	osLeakFn := osleaktest.Check(t)
	return func() {
		leakFn()
		osLeakFn()
	}
}

// writeTool writes an executable shell script standing in for an external tool.
func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools need a unix shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

type toolbox struct {
	dir     string
	argsLog string
	cfg     engine.Config
}

// newToolbox builds a gifsicle that answers --info for a 3 frame 100x50 image
// and otherwise copies stdin to stdout, plus transcoders that copy their input
// file to their output file. Every non-info invocation appends its arguments to
// argsLog, one per line.
func newToolbox(t *testing.T) *toolbox {
	dir := t.TempDir()
	argsLog := filepath.Join(dir, "args.log")
	tempDir := filepath.Join(dir, "tmp")
	if err := os.Mkdir(tempDir, 0o755); err != nil {
		t.Fatal(err)
	}

	gifsicle := writeTool(t, dir, "gifsicle", `
if [ "$1" = "--info" ]; then
  cat > /dev/null
  printf '* <stdin> 3 images\n  logical screen 100x50\n  + image #0 100x50\n'
  exit 0
fi
printf '%s\n' "$@" >> '`+argsLog+`'
cat
`)
	gif2webp := writeTool(t, dir, "gif2webp", `
printf '%s\n' "$@" >> '`+argsLog+`'
cp "$3" "$5"
`)
	heif2jpeg := writeTool(t, dir, "heif2jpeg", `
printf '%s\n' "$@" >> '`+argsLog+`'
cp "$1" "$2"
`)

	return &toolbox{
		dir:     dir,
		argsLog: argsLog,
		cfg: engine.Config{
			GifsiclePath:  gifsicle,
			Gif2WebpPath:  gif2webp,
			Heif2JpegPath: heif2jpeg,
			Quality:       90,
			Timeout:       10 * time.Second,
			TempDir:       tempDir,
		},
	}
}

func (tb *toolbox) loggedArgs(t *testing.T) []string {
	t.Helper()
	b, err := os.ReadFile(tb.argsLog)
	if err != nil {
		t.Fatalf("read args log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func (tb *toolbox) assertTempDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(tb.cfg.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected temp files to be removed, found %d entries", len(entries))
	}
}

func TestExecResizeAndRead(t *testing.T) {
	defer leakChecks(t)()

	tb := newToolbox(t)
	src := animatedGIF(t, 100, 50, 3)
	e := engine.New(tb.cfg)

	if err := e.Load(context.Background(), src, ".gif"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w, h := e.Size(); w != 100 || h != 50 || !e.IsMultiple() {
		t.Fatalf("unexpected metadata %+v", e.Metadata())
	}

	e.Resize(50, 0)
	out, err := e.Read(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if args := tb.loggedArgs(t); strings.Join(args, " ") != "--resize-width 50" {
		t.Errorf("expected a single --resize-width 50 invocation, got %q", args)
	}
	if !bytes.Equal(out, src) {
		t.Error("expected the tool output to replace the buffer")
	}
}

func TestExecWebpTranscode(t *testing.T) {
	defer leakChecks(t)()

	tb := newToolbox(t)
	src := animatedGIF(t, 100, 50, 3)
	e := engine.New(tb.cfg)
	if err := e.Load(context.Background(), src, ".gif"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	out, err := e.Read(context.Background(), ".webp", 80)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Error("expected output file contents to be returned")
	}

	args := tb.loggedArgs(t)
	if len(args) != 5 || args[0] != "-q" || args[1] != "80" || args[3] != "-o" {
		t.Fatalf("expected one gif2webp call with -q 80 <in> -o <out>, got %q", args)
	}
	if !strings.HasSuffix(args[2], ".gif") || !strings.HasSuffix(args[4], ".webp") {
		t.Errorf("unexpected temp file names %q %q", args[2], args[4])
	}
	for _, p := range []string{args[2], args[4]} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected %s to be removed, stat err %v", p, err)
		}
	}
	tb.assertTempDirEmpty(t)
}

func TestExecWebpDefaultQuality(t *testing.T) {
	tb := newToolbox(t)
	e := engine.New(tb.cfg)
	if err := e.Load(context.Background(), animatedGIF(t, 10, 10, 2), ".gif"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := e.Read(context.Background(), ".webp", 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if args := tb.loggedArgs(t); len(args) < 2 || args[1] != "90" {
		t.Errorf("expected configured quality 90, got %q", args)
	}
}

func TestExecTranscodeFailureRemovesTempFiles(t *testing.T) {
	defer leakChecks(t)()

	tb := newToolbox(t)
	tb.cfg.Gif2WebpPath = writeTool(t, tb.dir, "gif2webp-broken", `
printf '%s\n' "$@" >> '`+tb.argsLog+`'
echo "gif2webp: cannot decode" >&2
exit 3
`)
	e := engine.New(tb.cfg, engine.WithRequest(engine.Request{URL: "https://example.com/a.gif"}))
	if err := e.Load(context.Background(), animatedGIF(t, 10, 10, 2), ".gif"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err := e.Read(context.Background(), ".webp", 80)
	var toolErr *engine.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.Tool != engine.ToolGif2Webp || toolErr.ExitCode != 3 {
		t.Errorf("unexpected tool error %+v", toolErr)
	}
	if !strings.Contains(toolErr.Stderr, "cannot decode") {
		t.Errorf("expected stderr tail in error, got %q", toolErr.Stderr)
	}
	if !strings.Contains(err.Error(), "https://example.com/a.gif") {
		t.Errorf("expected request url in %q", err.Error())
	}
	tb.assertTempDirEmpty(t)
}

func TestExecHeifToJpeg(t *testing.T) {
	defer leakChecks(t)()

	tb := newToolbox(t)
	src := []byte("\x00\x00\x00\x18ftypheic-fake-heif-payload")
	e := engine.New(tb.cfg)
	if err := e.Load(context.Background(), src, ".heif"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	out, err := e.Read(context.Background(), ".jpg", 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Error("expected converter output to be returned")
	}
	args := tb.loggedArgs(t)
	if len(args) != 2 || !strings.HasSuffix(args[0], ".heif") || !strings.HasSuffix(args[1], ".jpg") {
		t.Errorf("expected heif2jpeg <in.heif> <out.jpg>, got %q", args)
	}
	tb.assertTempDirEmpty(t)
}

func TestExecGifsicleFailure(t *testing.T) {
	defer leakChecks(t)()

	tb := newToolbox(t)
	failing := writeTool(t, tb.dir, "gifsicle-broken", "cat > /dev/null\nexit 1\n")
	e := engine.New(engine.Config{GifsiclePath: failing, Timeout: 10 * time.Second})
	err := e.Load(context.Background(), animatedGIF(t, 10, 10, 2), ".gif")

	var toolErr *engine.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.ExitCode != 1 || !strings.Contains(err.Error(), failing+" --info") {
		t.Errorf("expected exit code 1 and command in %q", err.Error())
	}
}

func TestExecUnparsableInfo(t *testing.T) {
	tb := newToolbox(t)
	noSize := writeTool(t, tb.dir, "gifsicle-nosize", "cat > /dev/null\necho '* <stdin> 3 images'\n")
	e := engine.New(engine.Config{GifsiclePath: noSize, Timeout: 10 * time.Second})

	err := e.Load(context.Background(), animatedGIF(t, 10, 10, 2), ".gif")
	if !errors.Is(err, engine.ErrUnparsable) {
		t.Fatalf("expected ErrUnparsable, got %v", err)
	}
}

func TestExecTimeout(t *testing.T) {
	tb := newToolbox(t)
	slow := writeTool(t, tb.dir, "gifsicle-slow", "exec sleep 5\n")
	e := engine.New(engine.Config{GifsiclePath: slow, Timeout: 100 * time.Millisecond})

	start := time.Now()
	err := e.Load(context.Background(), []byte("GIF89a"), ".gif")
	var timeoutErr *engine.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("expected the tool to be killed quickly, took %s", elapsed)
	}
}

func TestExecTimeoutKillsWrapperChildren(t *testing.T) {
	tb := newToolbox(t)
	// sleep runs as a child of the shell and keeps stdout open
	wrapper := writeTool(t, tb.dir, "gifsicle-wrapper", "sleep 3\necho done >&2\n")
	e := engine.New(engine.Config{GifsiclePath: wrapper, Timeout: 100 * time.Millisecond})

	start := time.Now()
	err := e.Load(context.Background(), []byte("GIF89a"), ".gif")
	var timeoutErr *engine.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("expected the wrapper and its children to be killed, took %s", elapsed)
	}
}
