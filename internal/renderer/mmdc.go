package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// MmdcRenderer shells out to mermaid-cli.
type MmdcRenderer struct {
	Path string
}

func NewMmdcRenderer(path string) *MmdcRenderer {
	if path == "" {
		path = "mmdc"
	}
	return &MmdcRenderer{Path: path}
}

func (r *MmdcRenderer) Render(ctx context.Context, req Request) (string, error) {
	dir, err := os.MkdirTemp("", "mmdc-*")
	if err != nil {
		return "", fmt.Errorf("failed to create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.mmd")
	out := filepath.Join(dir, "out.svg")
	if err := os.WriteFile(in, []byte(ApplyTheme(req.Source, req.Theme)), 0o600); err != nil {
		return "", fmt.Errorf("failed to write render input: %w", err)
	}

	args := []string{"-i", in, "-o", out, "-b", "transparent", "-q"}
	if req.ElementID != "" {
		args = append(args, "-I", req.ElementID)
	}
	cmd := exec.CommandContext(ctx, r.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			raw := stderr.String()
			return "", &SyntaxError{Message: cliErrorMessage(raw), Str: raw}
		}
		return "", fmt.Errorf("mmdc failed: %w", err)
	}

	svg, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("failed to read mmdc output: %w", err)
	}
	return string(svg), nil
}

// cliErrorMessage keeps the parser message from mmdc stderr and drops the
// node stack trace that follows it.
func cliErrorMessage(stderr string) string {
	var kept []string
	for _, line := range strings.Split(stderr, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "at ") {
			break
		}
		if trimmed == "" && len(kept) == 0 {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \r\t"))
	}
	msg := strings.TrimSpace(strings.Join(kept, "\n"))
	msg = strings.TrimPrefix(msg, "Error: ")
	return msg
}
