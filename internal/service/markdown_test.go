package service

import (
	"strings"
	"testing"
)

func TestRenderMarkdown_VideoEmbeds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		markdown   string
		wantSrc    string
		wantVendor string
	}{
		{
			name:       "youtube",
			markdown:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantSrc:    "https://www.youtube.com/embed/dQw4w9WgXcQ",
			wantVendor: "youtube",
		},
		{
			name:       "youtube-short-link",
			markdown:   "youtu.be/dQw4w9WgXcQ?t=1m5s",
			wantSrc:    "start=65",
			wantVendor: "youtube",
		},
		{
			name:       "vimeo",
			markdown:   "https://vimeo.com/76979871",
			wantSrc:    "https://player.vimeo.com/video/76979871",
			wantVendor: "vimeo",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			html, err := RenderMarkdown(tt.markdown)
			if err != nil {
				t.Fatalf("render markdown: %v", err)
			}
			if !strings.Contains(html, "<iframe") {
				t.Fatalf("expected iframe in output, got: %s", html)
			}
			if !strings.Contains(html, tt.wantSrc) {
				t.Fatalf("expected %q in output, got: %s", tt.wantSrc, html)
			}
			if !strings.Contains(html, `data-video-platform="`+tt.wantVendor+`"`) {
				t.Fatalf("expected platform %s, got: %s", tt.wantVendor, html)
			}
		})
	}
}

func TestRenderMarkdown_SanitizesScripts(t *testing.T) {
	html, err := RenderMarkdown("# Respirer\n\n<script>alert(1)</script>\n\n<iframe src=\"https://evil.example/x\"></iframe>")
	if err != nil {
		t.Fatalf("render markdown: %v", err)
	}
	if strings.Contains(html, "<script") {
		t.Fatalf("script tag must be stripped: %s", html)
	}
	if strings.Contains(html, "evil.example") {
		t.Fatalf("foreign iframe src must be stripped: %s", html)
	}
	if !strings.Contains(html, "<h1") {
		t.Fatalf("expected heading, got: %s", html)
	}
}

func TestRenderMarkdown_LeavesCodeBlocksAlone(t *testing.T) {
	html, err := RenderMarkdown("```\nhttps://www.youtube.com/watch?v=dQw4w9WgXcQ\n```")
	if err != nil {
		t.Fatalf("render markdown: %v", err)
	}
	if strings.Contains(html, "<iframe") {
		t.Fatalf("fenced link must not be embedded: %s", html)
	}
}

func TestNormalizeVideoURL(t *testing.T) {
	if got := NormalizeVideoURL(" https://youtu.be/abc123 "); !strings.HasPrefix(got, "https://www.youtube.com/embed/abc123") {
		t.Fatalf("unexpected youtube embed: %s", got)
	}
	if got := NormalizeVideoURL("https://player.vimeo.com/video/42"); got != "https://player.vimeo.com/video/42" {
		t.Fatalf("unexpected vimeo embed: %s", got)
	}
	if got := NormalizeVideoURL("/uploads/clip.mp4"); got != "/uploads/clip.mp4" {
		t.Fatalf("local url must be unchanged, got %s", got)
	}
}
