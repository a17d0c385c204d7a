package export

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/webp"
)

const sampleSVG = `<svg xmlns="http://www.w3.org/2000/svg" id="mermaid-graph-1" width="100%" viewBox="0 0 120 60">
  <rect x="10" y="10" width="100" height="40" fill="#0284c7" stroke="#0c4a6e"/>
</svg>`

func TestExportSVGIsByteIdentical(t *testing.T) {
	d, err := NewExporter().Export(sampleSVG, FormatSVG, 2)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if d.Filename != "chart.svg" || d.MIMEType != "image/svg+xml" {
		t.Errorf("download = %s (%s)", d.Filename, d.MIMEType)
	}
	if !bytes.Equal(d.Data, []byte(sampleSVG)) {
		t.Error("svg export is not byte-identical to the source markup")
	}
}

func TestExportRasterDimensions(t *testing.T) {
	tests := []struct {
		format Format
		scale  int
		decode func([]byte) (image.Config, error)
	}{
		{FormatPNG, 2, func(b []byte) (image.Config, error) { return png.DecodeConfig(bytes.NewReader(b)) }},
		{FormatJPEG, 2, func(b []byte) (image.Config, error) { return jpeg.DecodeConfig(bytes.NewReader(b)) }},
		{FormatWEBP, 2, func(b []byte) (image.Config, error) { return webp.DecodeConfig(bytes.NewReader(b)) }},
		{FormatPNG, 1, func(b []byte) (image.Config, error) { return png.DecodeConfig(bytes.NewReader(b)) }},
		{FormatPNG, 4, func(b []byte) (image.Config, error) { return png.DecodeConfig(bytes.NewReader(b)) }},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			d, err := NewExporter().Export(sampleSVG, tt.format, tt.scale)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if d.Filename != "chart."+string(tt.format) {
				t.Errorf("filename = %q", d.Filename)
			}
			if d.MIMEType != tt.format.MIMEType() {
				t.Errorf("mime = %q", d.MIMEType)
			}
			cfg, err := tt.decode(d.Data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if cfg.Width != 120*tt.scale || cfg.Height != 60*tt.scale {
				t.Errorf("size = %dx%d, want %dx%d", cfg.Width, cfg.Height, 120*tt.scale, 60*tt.scale)
			}
		})
	}
}

func TestExportJPEGHasWhiteBackground(t *testing.T) {
	d, err := NewExporter().Export(sampleSVG, FormatJPEG, 1)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(d.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The corner lies outside the rect.
	r, g, b, _ := img.At(1, 1).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("corner pixel = (%d,%d,%d), want near white", r>>8, g>>8, b>>8)
	}
}

func TestExportPNGKeepsTransparency(t *testing.T) {
	d, err := NewExporter().Export(sampleSVG, FormatPNG, 1)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(d.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, _, _, a := img.At(1, 1).RGBA(); a != 0 {
		t.Errorf("corner alpha = %d, want transparent", a)
	}
}

func TestExportFallsBackToWidthHeight(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="30px" height="20"><rect width="30" height="20"/></svg>`
	d, err := NewExporter().Export(svg, FormatPNG, 2)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(d.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 60 || cfg.Height != 40 {
		t.Errorf("size = %dx%d, want 60x40", cfg.Width, cfg.Height)
	}
}

func TestExportPreconditions(t *testing.T) {
	tests := []struct {
		name   string
		svg    string
		format Format
		scale  int
		want   error
	}{
		{"empty", "", FormatSVG, 1, ErrNoDiagram},
		{"not svg", "<p>Your chart will appear here.</p>", FormatPNG, 1, ErrNoDiagram},
		{"bad scale", sampleSVG, FormatPNG, 3, ErrInvalidScale},
		{"bad format", sampleSVG, Format("gif"), 1, ErrUnsupportedFormat},
		{"no size", `<svg xmlns="http://www.w3.org/2000/svg"></svg>`, FormatPNG, 1, ErrDecode},
		{"too wide", hugeSVG, FormatPNG, 4, ErrDecode},
		{"too tall", `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 5000"></svg>`, FormatWEBP, 4, ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExporter().Export(tt.svg, tt.format, tt.scale)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

const hugeSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 20000 100"><rect width="10" height="10"/></svg>`

func TestExportHugeDiagramStaysVector(t *testing.T) {
	d, err := NewExporter().Export(hugeSVG, FormatSVG, 4)
	if err != nil || string(d.Data) != hugeSVG {
		t.Errorf("Export = %v, %v", d, err)
	}
}

func TestExportMalformedRaster(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><rect width="10" height="10"></svg>`
	_, err := NewExporter().Export(svg, FormatPNG, 1)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("PNG"); err != nil || f != FormatPNG {
		t.Errorf("ParseFormat(PNG) = (%q, %v)", f, err)
	}
	if _, err := ParseFormat("bmp"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ParseFormat(bmp) err = %v", err)
	}
}
