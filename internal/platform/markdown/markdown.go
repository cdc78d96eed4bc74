// Package markdown splits YAML front matter from markdown documents and
// renders the body to sanitized HTML.
package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	"github.com/fitmarket/api/internal/domain"
)

const fence = "---"

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Typographer),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		// Older posts embed raw HTML; the policy below strips anything unsafe.
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	policy = newHTMLPolicy()
)

func newHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("figure", "figcaption")
	p.AllowAttrs("class").OnElements("figure", "figcaption", "p", "span", "code")
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("loading").OnElements("img")
	p.RequireNoFollowOnLinks(true)
	return p
}

// Split separates the front matter block from the body. Documents without a
// leading --- line have empty front matter.
func Split(source []byte) (domain.FrontMatter, string, error) {
	text := strings.TrimPrefix(string(source), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(text, fence+"\n") {
		return domain.FrontMatter{}, text, nil
	}
	rest := text[len(fence)+1:]
	var header, body string
	switch {
	case strings.HasPrefix(rest, fence+"\n"):
		body = rest[len(fence)+1:]
	case rest == fence:
	default:
		end := strings.Index(rest, "\n"+fence+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+fence) {
				return domain.FrontMatter{}, text, nil
			}
			end = len(rest) - len(fence) - 1
			header = rest[:end]
		} else {
			header = rest[:end]
			body = rest[end+len(fence)+2:]
		}
	}

	var fm domain.FrontMatter
	if strings.TrimSpace(header) != "" {
		if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
			return domain.FrontMatter{}, "", fmt.Errorf("markdown: parse front matter: %w", err)
		}
	}
	fm.Title = strings.TrimSpace(fm.Title)
	fm.Date = strings.TrimSpace(fm.Date)
	return fm, strings.TrimLeft(body, "\n"), nil
}

// ToHTML renders markdown to HTML and sanitizes the result.
func ToHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return policy.Sanitize(buf.String()), nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}

// ParseDate reads the front matter date. Unparseable values yield the zero time.
func ParseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
