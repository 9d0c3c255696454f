package media

import (
	"strings"
	"testing"
)

func TestSlideHTMLEscapesContent(t *testing.T) {
	html := SlideHTML(Slide{
		Kicker:  "Rematrix",
		Title:   `Tags <b> & "quotes"`,
		Bullets: []string{"a < b", "c & d"},
		Footer:  "1 / 5",
	}, 1280, 720)

	if strings.Contains(html, "<b>") {
		t.Fatal("title markup was not escaped")
	}
	for _, want := range []string{
		"Tags &lt;b&gt; &amp; &#34;quotes&#34;",
		"<li>a &lt; b</li>",
		"<li>c &amp; d</li>",
		"width: 1280px",
		"height: 720px",
		">Rematrix<",
		"1 / 5",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("missing %q in rendered slide", want)
		}
	}
}

func TestSlideHTMLThemeDefaults(t *testing.T) {
	html := SlideHTML(Slide{Title: "t"}, 1280, 720)
	for _, want := range []string{defaultPrimary, defaultBackground, defaultText} {
		if !strings.Contains(html, want) {
			t.Fatalf("default theme color %q missing", want)
		}
	}

	custom := SlideHTML(Slide{
		Title: "t",
		Theme: Theme{Primary: "#111111", Background: "#222222", Text: "#333333"},
	}, 1280, 720)
	for _, want := range []string{"#111111", "#222222", "#333333"} {
		if !strings.Contains(custom, want) {
			t.Fatalf("custom theme color %q missing", want)
		}
	}
}
