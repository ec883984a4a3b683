// Package optimize rewrites program images into smaller equivalents.
package optimize

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/odvcencio/libforge/pkg/archive"
)

// Optimizer transforms a valid program image into a valid, usually smaller,
// program image.
type Optimizer interface {
	Optimize(ctx context.Context, image []byte) ([]byte, error)
}

// Recompress drops debug records and re-encodes the image with the dense
// codec.
type Recompress struct {
	// KeepDebug retains debug records.
	KeepDebug bool
}

func (o Recompress) Optimize(ctx context.Context, image []byte) ([]byte, error) {
	img, _, err := archive.DecodeImage(image)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	out := &archive.Image{Records: make([]archive.Record, 0, len(img.Records))}
	for _, r := range img.Records {
		if r.Kind == archive.RecordDebug && !o.KeepDebug {
			continue
		}
		out.Records = append(out.Records, r)
	}

	optimized, err := archive.EncodeImage(out, archive.CodecZstd)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	return optimized, nil
}

// Command pipes the image through an external program: the image is written
// to its stdin and the optimized image is read from its stdout.
type Command struct {
	Path string
	Args []string
}

// ParseCommand splits a whitespace-separated command line.
func ParseCommand(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("optimizer command is empty")
	}
	return &Command{Path: fields[0], Args: fields[1:]}, nil
}

func (c *Command) Optimize(ctx context.Context, image []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("optimize: %s: %w: %s", c.Path, err, msg)
		}
		return nil, fmt.Errorf("optimize: %s: %w", c.Path, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("optimize: %s produced no output", c.Path)
	}
	return stdout.Bytes(), nil
}
