package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gwi.com/mermaid-studio/internal/store"
	"gwi.com/mermaid-studio/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Re-render a Mermaid file every time it is saved",
	Long: `Watches the file and writes the rendered diagram next to it (chart.mmd
becomes chart.svg, or the --format extension) after each save. With --sync
every save also becomes the session's current diagram, so an open studio
in the browser follows along.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringP("output", "o", "", "output file (default <file> with the format extension)")
	watchCmd.Flags().StringP("format", "f", "", "svg, png, jpeg or webp")
	watchCmd.Flags().Int("scale", 2, "raster scale: 1, 2 or 4")
	watchCmd.Flags().StringP("theme", "t", "", "theme (default the session theme)")
	watchCmd.Flags().Bool("sync", false, "also save each change as the session's diagram")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	output, _ := cmd.Flags().GetString("output")
	formatFlag, _ := cmd.Flags().GetString("format")
	scale, _ := cmd.Flags().GetInt("scale")
	themeFlag, _ := cmd.Flags().GetString("theme")
	sync, _ := cmd.Flags().GetBool("sync")

	format, err := resolveFormat(formatFlag, output)
	if err != nil {
		return err
	}
	if output == "" {
		output = strings.TrimSuffix(path, filepath.Ext(path)) + "." + string(format)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	theme := a.Studio.State().Theme()
	if themeFlag != "" {
		if theme, err = store.ParseTheme(themeFlag); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	update := func(source string) {
		if sync {
			if err := a.Studio.Edit(source); err != nil {
				log.Printf("Failed to save diagram: %v", err)
			}
		}
		d, err := exportResult(a.Studio.Preview(ctx, source, theme), format, scale)
		if err != nil {
			log.Printf("%s: %v", path, err)
			return
		}
		if err := writeOutput(cmd.OutOrStdout(), output, d.Data); err != nil {
			log.Printf("%v", err)
			return
		}
		log.Printf("Wrote %s", output)
	}

	w, err := watch.New(path, a.Config.RenderDebounce, update)
	if err != nil {
		return err
	}
	defer w.Close()

	source, err := w.Read()
	if err != nil {
		return err
	}
	update(source)

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s. Press Ctrl+C to stop.\n", w.Path())
	<-ctx.Done()
	return nil
}
