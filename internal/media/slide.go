package media

import (
	"fmt"
	"html"
	"strings"
)

// Theme holds the slide color palette. Zero values fall back to the default
// palette.
type Theme struct {
	Primary    string
	Background string
	Text       string
}

// Slide is one rendered page of the video.
type Slide struct {
	Kicker  string
	Title   string
	Bullets []string
	Footer  string
	Theme   Theme
}

const (
	defaultPrimary    = "#4285F4"
	defaultBackground = "#F8F9FA"
	defaultText       = "#202124"
)

// SlideHTML renders a self-contained HTML document for one slide sized to
// the given viewport. All user text is escaped.
func SlideHTML(slide Slide, width, height int) string {
	theme := slide.Theme
	if theme.Primary == "" {
		theme.Primary = defaultPrimary
	}
	if theme.Background == "" {
		theme.Background = defaultBackground
	}
	if theme.Text == "" {
		theme.Text = defaultText
	}

	var bullets strings.Builder
	for _, bullet := range slide.Bullets {
		bullets.WriteString("<li>")
		bullets.WriteString(html.EscapeString(bullet))
		bullets.WriteString("</li>")
	}

	return fmt.Sprintf(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>
      * { box-sizing: border-box; }
      body {
        margin: 0;
        font-family: ui-sans-serif, system-ui, -apple-system, Segoe UI, Roboto, Helvetica, Arial;
        background: %s;
        color: %s;
      }
      .frame {
        width: %dpx;
        height: %dpx;
        padding: 64px;
        display: flex;
        flex-direction: column;
        justify-content: center;
      }
      .kicker {
        color: %s;
        font-weight: 600;
        letter-spacing: .08em;
        text-transform: uppercase;
        font-size: 14px;
      }
      h1 {
        margin: 14px 0 18px;
        font-size: 54px;
        line-height: 1.08;
      }
      ul {
        margin: 0;
        padding-left: 26px;
        font-size: 28px;
        line-height: 1.55;
      }
      li { margin: 8px 0; }
      .footer {
        position: absolute;
        left: 64px;
        bottom: 32px;
        font-size: 14px;
        opacity: 0.6;
      }
    </style>
  </head>
  <body>
    <div class="frame">
      <div class="kicker">%s</div>
      <h1>%s</h1>
      <ul>%s</ul>
      <div class="footer">%s</div>
    </div>
  </body>
</html>`,
		theme.Background,
		theme.Text,
		width,
		height,
		theme.Primary,
		html.EscapeString(slide.Kicker),
		html.EscapeString(slide.Title),
		bullets.String(),
		html.EscapeString(slide.Footer),
	)
}
