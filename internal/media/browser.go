package media

import (
	"context"
	"fmt"
	"os/exec"

	"rematrix/internal/config"
	"rematrix/internal/services"
)

var chromiumCandidates = []string{"chromium", "chromium-browser", "google-chrome"}

// Browser renders slide HTML to PNG frames with a headless Chromium.
type Browser struct {
	binary string
	width  int
	height int
	runner CommandRunner
}

// ResolveChromium returns the browser binary from config or PATH.
func ResolveChromium(cfg *config.Config) (string, error) {
	binary := cfg.Render.ChromiumBinary
	if binary == "" {
		for _, candidate := range chromiumCandidates {
			if path, err := exec.LookPath(candidate); err == nil {
				binary = path
				break
			}
		}
	}
	if binary == "" {
		return "", services.Wrap(services.ErrConfiguration, "RENDER", "browser",
			"no chromium binary found; set render.chromium_binary", nil)
	}
	return binary, nil
}

// NewBrowser resolves the browser binary from config or PATH.
func NewBrowser(cfg *config.Config, runner CommandRunner) (*Browser, error) {
	if runner == nil {
		runner = NewRunner()
	}
	binary, err := ResolveChromium(cfg)
	if err != nil {
		return nil, err
	}
	return &Browser{
		binary: binary,
		width:  cfg.Render.Width,
		height: cfg.Render.Height,
		runner: runner,
	}, nil
}

// Screenshot renders the HTML file at htmlPath into a PNG at outputPath.
func (b *Browser) Screenshot(ctx context.Context, htmlPath, outputPath string) error {
	args := []string{
		"--headless",
		"--disable-gpu",
		"--no-sandbox",
		"--hide-scrollbars",
		fmt.Sprintf("--window-size=%d,%d", b.width, b.height),
		"--screenshot=" + outputPath,
		"file://" + htmlPath,
	}
	_, err := b.runner.Run(ctx, b.binary, args...)
	return err
}
