// Package export turns rendered SVG markup into downloadable files.
package export

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/fogleman/gg"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

type Format string

const (
	FormatSVG  Format = "svg"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWEBP Format = "webp"
)

var Formats = []Format{FormatPNG, FormatJPEG, FormatWEBP, FormatSVG}

// Scales are the resolution multipliers offered for raster output.
var Scales = []int{1, 2, 4}

const lossyQuality = 90

// Raster output is capped so a huge viewBox cannot exhaust memory.
const (
	maxCanvasSide   = 16384
	maxCanvasPixels = 268435456
)

var (
	ErrNoDiagram         = errors.New("no svg diagram to export")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrInvalidScale      = errors.New("invalid export scale")
	ErrDecode            = errors.New("failed to decode svg for rasterization")
)

func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) MIMEType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	}
	return "application/octet-stream"
}

// Description is the short label shown next to each format.
func (f Format) Description() string {
	switch f {
	case FormatPNG:
		return "High Quality"
	case FormatJPEG:
		return "Small Size"
	case FormatWEBP:
		return "Modern Web"
	case FormatSVG:
		return "Vector"
	}
	return ""
}

// opaque reports whether the format needs a solid background.
func (f Format) opaque() bool {
	return f == FormatJPEG
}

type Download struct {
	Filename string
	MIMEType string
	Data     []byte
}

type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

// Export serializes svg in the requested format. Vector output is the markup
// unchanged; raster output is drawn at the intrinsic size times scale.
func (e *Exporter) Export(svg string, format Format, scale int) (*Download, error) {
	if !validScale(scale) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScale, scale)
	}
	root, err := readRoot(svg)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatSVG:
		return &Download{Filename: "chart.svg", MIMEType: format.MIMEType(), Data: []byte(svg)}, nil
	case FormatPNG, FormatJPEG, FormatWEBP:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	w, h, err := root.size()
	if err != nil {
		return nil, err
	}
	fw := math.Round(w * float64(scale))
	fh := math.Round(h * float64(scale))
	if fw > maxCanvasSide || fh > maxCanvasSide || fw*fh > maxCanvasPixels {
		return nil, fmt.Errorf("%w: target size %gx%g exceeds the %dpx limit", ErrDecode, fw, fh, maxCanvasSide)
	}
	width, height := int(fw), int(fh)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: empty target size %dx%d", ErrDecode, width, height)
	}

	img, err := rasterize(normalizeRoot(svg, w, h), width, height)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(width, height)
	if format.opaque() {
		dc.SetColor(color.White)
		dc.Clear()
	}
	dc.DrawImage(img, 0, 0)

	var buf bytes.Buffer
	if err := encode(&buf, dc, format); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return &Download{Filename: "chart." + string(format), MIMEType: format.MIMEType(), Data: buf.Bytes()}, nil
}

func encode(w io.Writer, dc *gg.Context, format Format) error {
	switch format {
	case FormatPNG:
		return dc.EncodePNG(w)
	case FormatJPEG:
		return jpeg.Encode(w, dc.Image(), &jpeg.Options{Quality: lossyQuality})
	case FormatWEBP:
		return webp.Encode(w, dc.Image(), &webp.Options{Lossless: false, Quality: lossyQuality})
	}
	return ErrUnsupportedFormat
}

func rasterize(svg string, width, height int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

var sizeAttr = regexp.MustCompile(`\s(width|height)\s*=\s*("[^"]*"|'[^']*')`)

// normalizeRoot rewrites the root width/height as plain user units, since
// renderers emit values such as width="100%" that the rasterizer rejects.
func normalizeRoot(svg string, w, h float64) string {
	start := strings.Index(svg, "<svg")
	if start < 0 {
		return svg
	}
	end := strings.IndexByte(svg[start:], '>')
	if end < 0 {
		return svg
	}
	end += start
	tag := sizeAttr.ReplaceAllString(svg[start+len("<svg"):end], "")
	return fmt.Sprintf("%s<svg width=\"%g\" height=\"%g\"%s%s", svg[:start], w, h, tag, svg[end:])
}

func validScale(scale int) bool {
	for _, s := range Scales {
		if s == scale {
			return true
		}
	}
	return false
}

type svgRoot struct {
	ViewBox string
	Width   string
	Height  string
}

// readRoot checks that the markup has an <svg> document element and returns
// its sizing attributes.
func readRoot(svg string) (*svgRoot, error) {
	if strings.TrimSpace(svg) == "" {
		return nil, ErrNoDiagram
	}
	dec := xml.NewDecoder(strings.NewReader(svg))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, ErrNoDiagram
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return nil, ErrNoDiagram
		}
		root := &svgRoot{}
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "viewBox":
				root.ViewBox = a.Value
			case "width":
				root.Width = a.Value
			case "height":
				root.Height = a.Value
			}
		}
		return root, nil
	}
}

// size prefers the viewBox and falls back to the width/height attributes.
func (r *svgRoot) size() (float64, float64, error) {
	if fields := strings.FieldsFunc(r.ViewBox, func(c rune) bool { return c == ' ' || c == ',' }); len(fields) == 4 {
		w, errW := strconv.ParseFloat(fields[2], 64)
		h, errH := strconv.ParseFloat(fields[3], 64)
		if errW == nil && errH == nil && w > 0 && h > 0 {
			return w, h, nil
		}
	}
	w, okW := parseLength(r.Width)
	h, okH := parseLength(r.Height)
	if okW && okH {
		return w, h, nil
	}
	return 0, 0, fmt.Errorf("%w: no usable viewBox or width/height", ErrDecode)
}

func parseLength(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" || strings.HasSuffix(s, "%") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil && v > 0
}
