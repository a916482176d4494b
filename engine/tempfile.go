package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const tempPattern = "gif-engine-*"

// withTempFiles writes input to a fresh temp file, creates an empty output
// temp file, calls fn with both paths and returns the output file contents.
// Both files are removed on every return path; removal failures are logged.
func withTempFiles(dir string, input []byte, inSuffix, outSuffix string, logger *zap.Logger, fn func(inPath, outPath string) error) ([]byte, error) {
	var paths []string
	defer func() {
		var errs error
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = multierr.Append(errs, err)
			}
		}
		if errs != nil {
			logger.Warn("failed to remove temp files", zap.Strings("paths", paths), zap.Error(errs))
		}
	}()

	in, err := os.CreateTemp(dir, tempPattern+inSuffix)
	if err != nil {
		return nil, fmt.Errorf("create input temp file: %w", err)
	}
	paths = append(paths, in.Name())
	_, err = in.Write(input)
	if err = multierr.Append(err, in.Close()); err != nil {
		return nil, fmt.Errorf("write input temp file: %w", err)
	}

	out, err := os.CreateTemp(dir, tempPattern+outSuffix)
	if err != nil {
		return nil, fmt.Errorf("create output temp file: %w", err)
	}
	paths = append(paths, out.Name())
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close output temp file: %w", err)
	}

	if err := fn(in.Name(), out.Name()); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(out.Name())
	if err != nil {
		return nil, fmt.Errorf("read output temp file: %w", err)
	}
	return data, nil
}
