package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileLoader reads snapshots from the local filesystem. The reference "-"
// reads Stdin.
type FileLoader struct {
	Stdin io.Reader
}

// Load implements Loader.
func (l FileLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ref == "-" {
		in := l.Stdin
		if in == nil {
			in = os.Stdin
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	path := strings.TrimPrefix(ref, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
