package build

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetline/internal/config"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

// Codec compresses the bytes of one image format.
type Codec interface {
	Name() string
	Apply(ctx context.Context, in []byte) ([]byte, error)
}

// execCodec runs an optimizer binary. Args may contain {in} and {out}
// placeholders; without them data flows over stdin/stdout.
type execCodec struct {
	name   string
	binary string
	args   []string
	// okCodes are non-zero exit codes that mean "no better result".
	okCodes []int
}

func (c execCodec) Name() string { return c.name }

func (c execCodec) usesFiles() bool {
	for _, a := range c.args {
		if a == "{in}" || a == "{out}" {
			return true
		}
	}
	return false
}

func (c execCodec) Apply(ctx context.Context, in []byte) ([]byte, error) {
	if !c.usesFiles() {
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, c.binary, c.args...)
		cmd.Stdin = bytes.NewReader(in)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if c.acceptable(err) {
				return in, nil
			}
			return nil, fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), nil
	}

	dir, err := os.MkdirTemp("", "assetline-"+c.name+"-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "in")
	outPath := filepath.Join(dir, "out")
	if err := os.WriteFile(inPath, in, 0o600); err != nil {
		return nil, err
	}

	args := make([]string, len(c.args))
	for i, a := range c.args {
		switch a {
		case "{in}":
			args[i] = inPath
		case "{out}":
			args[i] = outPath
		default:
			args[i] = a
		}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if c.acceptable(err) {
			return in, nil
		}
		return nil, fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(stderr.String()))
	}

	// In-place tools leave only {in}.
	if out, err := os.ReadFile(outPath); err == nil {
		return out, nil
	}
	return os.ReadFile(inPath)
}

func (c execCodec) acceptable(err error) bool {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	for _, code := range c.okCodes {
		if exitErr.ExitCode() == code {
			return true
		}
	}
	return false
}

// nativePNG re-encodes PNGs losslessly at the best zlib compression.
type nativePNG struct{}

func (nativePNG) Name() string { return "png-native" }

func (nativePNG) Apply(_ context.Context, in []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("decoding png: %w", err)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// svgMinifier fills the svgo role with tdewolff/minify.
type svgMinifier struct {
	m *minify.M
}

func newSVGMinifier() svgMinifier {
	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)
	return svgMinifier{m: m}
}

func (svgMinifier) Name() string { return "svgo" }

func (s svgMinifier) Apply(_ context.Context, in []byte) ([]byte, error) {
	return s.m.Bytes("image/svg+xml", in)
}

// codecPlan lists the codecs per lower-case extension.
type codecPlan map[string][]Codec

// planCodecs builds the codec chains from the toggles in cfg. Enabled codecs
// whose binary is missing are dropped and returned in missing.
func planCodecs(cfg config.ImagesConfig, lookPath func(string) (string, error)) (plan codecPlan, missing []string) {
	plan = make(codecPlan)
	add := func(exts []string, c Codec) {
		for _, ext := range exts {
			plan[ext] = append(plan[ext], c)
		}
	}
	pngs := []string{".png"}
	jpegs := []string{".jpg", ".jpeg"}

	tryExec := func(enabled bool, exts []string, c execCodec) bool {
		if !enabled {
			return true
		}
		if _, err := lookPath(c.binary); err != nil {
			missing = append(missing, c.binary)
			return false
		}
		add(exts, c)
		return true
	}

	tryExec(cfg.Pngquant, pngs, execCodec{
		name: "pngquant", binary: "pngquant",
		args:    []string{"--quality=65-80", "--speed", "1", "--strip", "-"},
		okCodes: []int{98, 99},
	})
	if !tryExec(cfg.Optipng, pngs, execCodec{
		name: "optipng", binary: "optipng",
		args: []string{"-quiet", "-o2", "{in}"},
	}) {
		add(pngs, nativePNG{})
	}
	tryExec(cfg.Zopflipng, pngs, execCodec{
		name: "zopflipng", binary: "zopflipng",
		args: []string{"-y", "--lossy_transparent", "{in}", "{out}"},
	})
	tryExec(cfg.JpegRecompress, jpegs, execCodec{
		name: "jpeg-recompress", binary: "jpeg-recompress",
		args: []string{"--quiet", "--strip", "{in}", "{out}"},
	})
	tryExec(cfg.Mozjpeg, jpegs, execCodec{
		name: "mozjpeg", binary: "cjpeg",
		args: []string{"-optimize", "-progressive", "-outfile", "{out}", "{in}"},
	})
	tryExec(cfg.Gifsicle, []string{".gif"}, execCodec{
		name: "gifsicle", binary: "gifsicle",
		args: []string{"--optimize=3"},
	})
	if cfg.Svgo {
		add([]string{".svg"}, newSVGMinifier())
	}

	return plan, missing
}
