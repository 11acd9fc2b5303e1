// Package artifact produces the files derived from a validated source model.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"math"
	"path"
	"strings"

	"github.com/arvault/arvault/internal/config"
	"github.com/cenkalti/dominantcolor"
	"github.com/fogleman/gg"
)

const ThumbnailContentType = "image/png"

type ThumbnailInput struct {
	Filename string
	Label    string
}

type Thumbnail struct {
	PNG    []byte
	Width  int
	Height int
	Colors [][4]uint8
}

// Thumbnailer renders placeholder previews. It does not read the model
// geometry; every source gets the same template with its own label.
type Thumbnailer struct {
	size       int
	background [2]color.Color
	accent     color.Color
}

func NewThumbnailer() *Thumbnailer {
	return &Thumbnailer{
		size: config.THUMBNAIL_SIZE,
		background: [2]color.Color{
			color.NRGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff},
			color.NRGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff},
		},
		accent: color.NRGBA{R: 0x38, G: 0xbd, B: 0xf8, A: 0xff},
	}
}

func (t *Thumbnailer) Generate(ctx context.Context, in ThumbnailInput) (Thumbnail, error) {
	if err := ctx.Err(); err != nil {
		return Thumbnail{}, err
	}

	size := float64(t.size)
	dc := gg.NewContext(t.size, t.size)

	grad := gg.NewLinearGradient(0, 0, size, size)
	grad.AddColorStop(0, t.background[0])
	grad.AddColorStop(1, t.background[1])
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, size, size)
	dc.Fill()

	t.drawCube(dc, size/2, size*0.44, size*0.22)

	dc.SetColor(color.White)
	dc.DrawStringAnchored(thumbnailLabel(in), size/2, size*0.84, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return Thumbnail{}, fmt.Errorf("failed to encode PNG: %w", err)
	}

	colors := make([][4]uint8, 0, 4)
	for _, c := range dominantcolor.FindN(dc.Image(), 4) {
		colors = append(colors, [4]uint8{c.R, c.G, c.B, c.A})
	}

	return Thumbnail{
		PNG:    buf.Bytes(),
		Width:  t.size,
		Height: t.size,
		Colors: colors,
	}, nil
}

const maxLabelRunes = 40

// thumbnailLabel is the caption under the cube, cut on rune boundaries.
func thumbnailLabel(in ThumbnailInput) string {
	label := in.Label
	if label == "" {
		label = strings.TrimSuffix(path.Base(in.Filename), path.Ext(in.Filename))
	}
	runes := []rune(label)
	if len(runes) > maxLabelRunes {
		return string(runes[:maxLabelRunes-3]) + "..."
	}
	return label
}

// drawCube draws an isometric cube outline centred on (cx, cy).
func (t *Thumbnailer) drawCube(dc *gg.Context, cx, cy, r float64) {
	dx := r * math.Cos(math.Pi/6)
	dy := r * math.Sin(math.Pi/6)

	top := [][2]float64{{cx, cy - r}, {cx + dx, cy - dy}, {cx, cy}, {cx - dx, cy - dy}}
	left := [][2]float64{{cx - dx, cy - dy}, {cx, cy}, {cx, cy + r}, {cx - dx, cy + r - dy}}
	right := [][2]float64{{cx, cy}, {cx + dx, cy - dy}, {cx + dx, cy + r - dy}, {cx, cy + r}}

	shades := []float64{0.55, 0.35, 0.2}
	for i, face := range [][][2]float64{top, left, right} {
		dc.NewSubPath()
		dc.MoveTo(face[0][0], face[0][1])
		for _, p := range face[1:] {
			dc.LineTo(p[0], p[1])
		}
		dc.ClosePath()
		ar, ag, ab, _ := t.accent.RGBA()
		dc.SetRGBA(float64(ar)/0xffff, float64(ag)/0xffff, float64(ab)/0xffff, shades[i])
		dc.FillPreserve()
		dc.SetColor(t.accent)
		dc.SetLineWidth(3)
		dc.Stroke()
	}
}
