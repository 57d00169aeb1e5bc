package content

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	"alphadroid.org/devices-web/internal/escape"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

type frontMatter struct {
	Title   string `yaml:"title"`
	Summary string `yaml:"summary"`
	ID      string `yaml:"id"`
	Class   string `yaml:"class"`
}

// Render turns a fetched fragment into sanitized markup. Markdown fragments
// (.md) may carry YAML front matter; everything else is treated as HTML.
func Render(name string, body []byte) (string, error) {
	if strings.EqualFold(path.Ext(name), ".md") {
		return renderMarkdown(name, string(body))
	}
	return escape.Fragment(string(body)), nil
}

func renderMarkdown(name, input string) (string, error) {
	fm, body := splitFrontMatter(input)
	front := frontMatter{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return "", fmt.Errorf("content: parse front matter %s: %w", name, err)
		}
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("content: render %s: %w", name, err)
	}

	class := "container markdown"
	if c := strings.TrimSpace(front.Class); c != "" {
		class += " " + c
	}
	var out strings.Builder
	out.WriteString(`<section class="` + escape.Attr(class) + `"`)
	if id := strings.TrimSpace(front.ID); id != "" {
		out.WriteString(` id="` + escape.Attr(id) + `"`)
	}
	out.WriteString(">")
	if t := strings.TrimSpace(front.Title); t != "" {
		out.WriteString("<h1>" + escape.HTML(t) + "</h1>")
	}
	if s := strings.TrimSpace(front.Summary); s != "" {
		out.WriteString(`<p class="summary">` + escape.HTML(s) + "</p>")
	}
	out.WriteString(buf.String())
	out.WriteString("</section>")
	return escape.Fragment(out.String()), nil
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}
