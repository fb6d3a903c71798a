// Package report renders inspection findings as a standalone HTML
// document.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
)

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInstance
}

// HTML renders the CUI inspection report. Output depends only on the
// findings, so identical findings produce identical bytes.
type HTML struct{}

func (HTML) Kind() string      { return inspections.KindReportHTML }
func (HTML) Extension() string { return ".html" }

func (HTML) Render(ctx context.Context, f inspections.Findings) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var body bytes.Buffer
	if err := getMarkdown().Convert([]byte(Markdown(f)), &body); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>CUI Inspection Report: %s</title>\n", html.EscapeString(f.Filename))
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

// Markdown is the report source before HTML conversion.
func Markdown(f inspections.Findings) string {
	var b strings.Builder
	b.WriteString("# CUI Inspection Report\n\n")
	fmt.Fprintf(&b, "- **File:** %s\n", escape(f.Filename))
	fmt.Fprintf(&b, "- **Risk:** %s\n", valueOrNone(string(f.RiskLevel)))
	detected := "unknown"
	if f.CUIDetected != nil {
		detected = fmt.Sprintf("%t", *f.CUIDetected)
	}
	fmt.Fprintf(&b, "- **CUI Detected:** %s\n", detected)
	if f.Error != "" {
		fmt.Fprintf(&b, "- **Analyzer error:** %s\n", escape(f.Error))
	}

	b.WriteString("\n## Patterns\n\n")
	if len(f.PatternsFound) == 0 {
		b.WriteString("No patterns found.\n")
	} else {
		names := make([]string, 0, len(f.PatternsFound))
		for k := range f.PatternsFound {
			names = append(names, k)
		}
		sort.Strings(names)
		b.WriteString("| Pattern | Count |\n|---|---:|\n")
		for _, k := range names {
			fmt.Fprintf(&b, "| %s | %d |\n", escape(k), f.PatternsFound[k])
		}
		fmt.Fprintf(&b, "\n**Total:** %d\n", f.PatternsTotal())
	}

	if cats := f.SortedCategories(); len(cats) > 0 {
		b.WriteString("\n## Categories\n\n")
		for _, c := range cats {
			fmt.Fprintf(&b, "- %s\n", escape(c))
		}
	}
	return b.String()
}

func valueOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return escape(s)
}

var markdownEscaper = func() *strings.Replacer {
	var pairs []string
	for _, c := range "\\`*_{}[]()#+-.!|<>&~" {
		pairs = append(pairs, string(c), "\\"+string(c))
	}
	pairs = append(pairs, "\n", " ", "\r", " ")
	return strings.NewReplacer(pairs...)
}()

// escape neutralizes markdown and inline HTML in user-controlled text.
func escape(s string) string { return markdownEscaper.Replace(s) }

var _ inspections.Renderer = HTML{}
