package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"gwi.com/mermaid-studio/internal/core"
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Ask the AI model for a diagram and make it the current one",
	Long: `Generates a new diagram from the prompt, or with --refine applies the
prompt as instructions to the current diagram. A file or web page can be
attached as source material. AI settings come from the shared session,
falling back to $API_KEY on first run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available to the configured API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		models := a.Studio.ListModels(cmd.Context())
		if len(models) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No models found. Check the API key and URL settings.")
			return nil
		}
		for _, m := range models {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.ID, m.DisplayName)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().Bool("refine", false, "change the current diagram instead of starting over")
	generateCmd.Flags().String("file", "", "attach a file (image, PDF or text)")
	generateCmd.Flags().String("url", "", "attach the text of a web page")
	rootCmd.AddCommand(generateCmd, modelsCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	refine, _ := cmd.Flags().GetBool("refine")
	file, _ := cmd.Flags().GetString("file")
	pageURL, _ := cmd.Flags().GetString("url")
	if file != "" && pageURL != "" {
		return errors.New("--file and --url cannot be combined")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := core.AIRequest{Mode: core.AIModeGenerate}
	if refine {
		req.Mode = core.AIModeRefine
	}
	if len(args) == 1 {
		req.Prompt = args[0]
	}

	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		req.Attachment = &core.Attachment{Name: filepath.Base(file), Data: data}
	case pageURL != "":
		att, err := a.Studio.FetchURL(ctx, pageURL)
		if err != nil {
			return err
		}
		req.Attachment = att
	}

	code, err := a.Studio.Generate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), code)
	return nil
}
