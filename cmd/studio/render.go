package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gwi.com/mermaid-studio/internal/core"
	"gwi.com/mermaid-studio/internal/export"
	"gwi.com/mermaid-studio/internal/store"
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render a Mermaid file, or the current diagram, to SVG, PNG, JPEG or WebP",
	Long: `Renders the given Mermaid file ("-" reads stdin) without touching the
saved session. With no file the session's current diagram is rendered.
The format follows --format, else the --output extension, else svg.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	renderCmd.Flags().StringP("format", "f", "", "svg, png, jpeg or webp")
	renderCmd.Flags().Int("scale", 2, "raster scale: 1, 2 or 4")
	renderCmd.Flags().StringP("theme", "t", "", "theme (default the session theme)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	formatFlag, _ := cmd.Flags().GetString("format")
	scale, _ := cmd.Flags().GetInt("scale")
	themeFlag, _ := cmd.Flags().GetString("theme")

	format, err := resolveFormat(formatFlag, output)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	state := a.Studio.State()
	source, theme := state.Code(), state.Theme()
	if len(args) == 1 {
		if source, err = readSource(cmd.InOrStdin(), args[0]); err != nil {
			return err
		}
	}
	if themeFlag != "" {
		if theme, err = store.ParseTheme(themeFlag); err != nil {
			return err
		}
	}

	res := a.Studio.Preview(context.Background(), source, theme)
	d, err := exportResult(res, format, scale)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), output, d.Data)
}

// resolveFormat picks the export format from the flag or the output file
// extension.
func resolveFormat(flag, output string) (export.Format, error) {
	name := flag
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(output), ".")
	}
	switch strings.ToLower(name) {
	case "":
		return export.FormatSVG, nil
	case "jpg":
		return export.FormatJPEG, nil
	}
	return export.ParseFormat(name)
}

func readSource(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func exportResult(res core.RenderResult, format export.Format, scale int) (*export.Download, error) {
	switch res.Status {
	case core.RenderPlaceholder:
		return nil, errors.New("the diagram is empty")
	case core.RenderError:
		return nil, fmt.Errorf("syntax error: %s", res.Error)
	}
	return export.NewExporter().Export(res.SVG, format, scale)
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
