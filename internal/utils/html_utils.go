package utils

import (
	"html"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EnhanceHTMLContent post-processes rendered markdown: lazy images, and
// ```markdown-copy fences become a copyable textarea widget.
func EnhanceHTMLContent(htmlStr string) template.HTML {
	if htmlStr == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return template.HTML(htmlStr)
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("loading", "lazy")
	})

	doc.Find("pre > code.language-markdown-copy").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimRight(s.Text(), "\n")
		widget := `<div><markdown-copy><textarea>` + html.EscapeString(text) + `</textarea></markdown-copy></div>`
		s.Parent().ReplaceWithHtml(widget)
	})

	out, _ := doc.Find("body").Html()
	if out == "" {
		out, _ = doc.Html()
	}
	return template.HTML(out)
}

// ExtractTitle returns the trimmed <title> of an HTML document.
func ExtractTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("head > title").First().Text())
}
