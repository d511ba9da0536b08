package service

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML(), html.WithUnsafe()),
	)
	contentSanitizer = buildContentSanitizer()
)

// RenderMarkdown 将 Markdown 渲染为经过清洗的 HTML，视频链接会转换为嵌入播放器。
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(applyVideoEmbeds(source)), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return contentSanitizer.Sanitize(buf.String()), nil
}
