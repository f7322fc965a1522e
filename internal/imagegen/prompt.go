package imagegen

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// DefaultPromptPrefixLen bounds how much record content feeds the
// derived prompt. Long prompts cost more and add nothing to a
// thumbnail.
const DefaultPromptPrefixLen = 400

const promptTemplate = "Create a single square abstract illustration that evokes the theme below. " +
	"Use a clean, modern style with soft gradients. " +
	"Do not include any text, letters, or words in the image. Theme: %s"

// buildPrompt derives the image-generation prompt from record content:
// strip markup, collapse whitespace, truncate to prefixLen runes, and
// wrap in the fixed style template.
func buildPrompt(text string, prefixLen int) string {
	plain := stripHTML(text)
	plain = strings.Join(strings.Fields(plain), " ")

	if prefixLen <= 0 {
		prefixLen = DefaultPromptPrefixLen
	}
	if runes := []rune(plain); len(runes) > prefixLen {
		plain = string(runes[:prefixLen])
	}
	return fmt.Sprintf(promptTemplate, plain)
}

// stripHTML extracts the text content of any markup in the record.
// Prompt content pasted from the product's editor can carry tags.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
	}
	extractText(doc)

	return strings.TrimSpace(buf.String())
}
