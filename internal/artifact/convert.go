package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/arvault/arvault/internal/config"
)

const USDZContentType = "model/vnd.usdz+zip"

var ErrConverterDisabled = errors.New("usdz converter is not configured")

// Converter turns GLB bytes into an AR interchange file.
type Converter interface {
	Convert(ctx context.Context, glb []byte) ([]byte, error)
}

// NoopConverter is used when no external converter is configured.
type NoopConverter struct{}

func (NoopConverter) Convert(context.Context, []byte) ([]byte, error) {
	return nil, ErrConverterDisabled
}

// ExecConverter runs an external converter binary in its own process so that
// its memory use and crashes stay outside the API process. It is invoked as
//
//	<command> [args...] <input.glb> <output.usdz> --max-texture-size N
type ExecConverter struct {
	Command        string
	Args           []string
	Timeout        time.Duration
	MaxTextureSize int
	MaxOutputBytes int64
}

// NewExecConverter parses a command line such as "usdzconvert --quiet".
func NewExecConverter(cmdline string, timeout time.Duration, maxTextureSize int) *ExecConverter {
	fields := strings.Fields(cmdline)
	c := &ExecConverter{
		Timeout:        timeout,
		MaxTextureSize: maxTextureSize,
		MaxOutputBytes: 512 * 1024 * 1024,
	}
	if len(fields) > 0 {
		c.Command = fields[0]
		c.Args = fields[1:]
	}
	return c
}

func (c *ExecConverter) Convert(ctx context.Context, glb []byte) ([]byte, error) {
	if c.Command == "" {
		return nil, ErrConverterDisabled
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp("", "usdz-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var (
		in  = filepath.Join(dir, "input.glb")
		out = filepath.Join(dir, "output.usdz")
	)
	if err := os.WriteFile(in, glb, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	args := append(append([]string{}, c.Args...), in, out)
	if c.MaxTextureSize > 0 {
		args = append(args, "--max-texture-size", strconv.Itoa(c.MaxTextureSize))
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("converter timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("converter failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(out)
	if err != nil {
		return nil, fmt.Errorf("converter produced no output: %w", err)
	}
	if c.MaxOutputBytes > 0 && info.Size() > c.MaxOutputBytes {
		return nil, fmt.Errorf("converter output too large: %d bytes", info.Size())
	}

	b, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	// usdz is a zip package
	if !bytes.HasPrefix(b, []byte("PK\x03\x04")) {
		return nil, fmt.Errorf("converter output is not a usdz package")
	}
	return b, nil
}

// SafeConvert runs conv and absorbs every failure, including panics. The
// second return value is false when no artifact was produced.
func SafeConvert(ctx context.Context, l *slog.Logger, conv Converter, glb []byte) (out []byte, ok bool) {
	if conv == nil {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			l.ErrorContext(ctx, "usdz conversion panicked", slog.Any("panic", r))
			out, ok = nil, false
		}
	}()

	b, err := conv.Convert(ctx, glb)
	if err != nil {
		if errors.Is(err, ErrConverterDisabled) {
			l.DebugContext(ctx, "usdz conversion skipped", slog.String("reason", err.Error()))
		} else {
			l.WarnContext(ctx, "usdz conversion failed", slog.String("err", err.Error()))
		}
		return nil, false
	}
	if len(b) == 0 {
		return nil, false
	}
	return b, true
}

// NewConverterFromEnv returns an ExecConverter when USDZ_CONVERTER_CMD is set
// and a NoopConverter otherwise.
func NewConverterFromEnv() Converter {
	cmdline := strings.TrimSpace(os.Getenv(config.ENV_KEY_USDZ_CONVERTER_CMD))
	if cmdline == "" {
		return NoopConverter{}
	}
	timeout := config.USDZ_DEFAULT_TIMEOUT
	if d, err := time.ParseDuration(os.Getenv(config.ENV_KEY_USDZ_CONVERTER_TIMEOUT)); err == nil && d > 0 {
		timeout = d
	}
	return NewExecConverter(cmdline, timeout, config.USDZ_MAX_TEXTURE_SIZE)
}
