package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"rematrix/internal/config"
	"rematrix/internal/logging"
	"rematrix/internal/media"
	"rematrix/internal/services"
	"rematrix/internal/stage"
)

// minRenderFreeBytes is the workspace headroom required before writing
// frames or the merged video.
const minRenderFreeBytes = 256 << 20

// renderGenerator turns the approved slide deck into PNG frames via a
// headless browser. The browser binary is resolved per run so a missing
// Chromium surfaces at the RENDER stage, not at daemon boot.
type renderGenerator struct {
	cfg    *config.Config
	runner media.CommandRunner
	logger *slog.Logger
}

func newRenderGenerator(cfg *config.Config, runner media.CommandRunner, logger *slog.Logger) *renderGenerator {
	return &renderGenerator{
		cfg:    cfg,
		runner: runner,
		logger: logging.NewComponentLogger(logger, "generation"),
	}
}

func (g *renderGenerator) Generate(ctx context.Context, in stage.Input) (*stage.Output, error) {
	var pages PagesDoc
	if err := json.Unmarshal(in.Upstream[stage.Pages], &pages); err != nil {
		return nil, services.Wrap(services.ErrValidation, string(stage.Render), "decode pages", "", err)
	}
	if len(pages.Slides) == 0 {
		return nil, services.Wrap(services.ErrValidation, string(stage.Render), "decode pages", "no slides to render", nil)
	}

	dir, err := jobWorkDir(g.cfg, in.JobID)
	if err != nil {
		return nil, err
	}
	if err := media.CheckFreeSpace(dir, minRenderFreeBytes); err != nil {
		return nil, err
	}

	browser, err := media.NewBrowser(g.cfg, g.runner)
	if err != nil {
		return nil, err
	}

	width, height := g.cfg.Render.Width, g.cfg.Render.Height
	frameDir := filepath.Join(dir, "frames")
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, string(stage.Render), "workspace", frameDir, err)
	}

	frames := make([]FrameInfo, 0, len(pages.Slides))
	for i, slide := range pages.Slides {
		html := media.SlideHTML(media.Slide{
			Kicker:  "Rematrix",
			Title:   slide.Title,
			Bullets: slide.Bullets,
			Footer:  fmt.Sprintf("%d / %d", i+1, len(pages.Slides)),
			Theme: media.Theme{
				Primary:    pages.Theme.Primary,
				Background: pages.Theme.Background,
				Text:       pages.Theme.Text,
			},
		}, width, height)

		htmlPath := filepath.Join(frameDir, fmt.Sprintf("slide-%03d.html", i+1))
		if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, string(stage.Render), "write slide", htmlPath, err)
		}
		frameName := fmt.Sprintf("frame-%03d.png", i+1)
		if err := browser.Screenshot(ctx, htmlPath, filepath.Join(frameDir, frameName)); err != nil {
			return nil, err
		}
		frames = append(frames, FrameInfo{Index: i + 1, File: frameName})
	}

	content, err := json.Marshal(RenderDescriptor{
		FrameCount: len(frames),
		FrameDir:   frameDir,
		Frames:     frames,
		Width:      width,
		Height:     height,
	})
	if err != nil {
		return nil, err
	}
	return &stage.Output{Content: content, ContentType: "application/json"}, nil
}
