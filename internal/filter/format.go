package filter

import (
	"html"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	BasicHTML = "basic_html"
	FullHTML  = "full_html"
	PlainText = "plain_text"
)

// Fallback is used for empty or unknown format IDs.
const Fallback = PlainText

// Format is a named text format that decides which markup survives rendering.
type Format struct {
	ID     string
	Label  string
	policy *bluemonday.Policy
}

var formats = map[string]*Format{
	BasicHTML: {ID: BasicHTML, Label: "Basic HTML", policy: basicHTMLPolicy()},
	FullHTML:  {ID: FullHTML, Label: "Full HTML", policy: fullHTMLPolicy()},
	PlainText: {ID: PlainText, Label: "Plain text"},
}

func basicHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowElements("p", "br", "strong", "em", "cite", "code", "ul", "ol", "li", "dl", "dt", "dd", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("href", "hreflang").OnElements("a")
	p.AllowAttrs("cite").OnElements("blockquote")
	p.AllowAttrs("start", "type").OnElements("ol")
	p.AllowAttrs("type").OnElements("ul")
	return p
}

func fullHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("iframe")
	p.AllowAttrs("src", "width", "height", "frameborder", "allowfullscreen").OnElements("iframe")
	return p
}

// Lookup returns the format registered under id.
func Lookup(id string) (*Format, bool) {
	f, ok := formats[id]
	return f, ok
}

// IsKnown reports whether id names a registered format.
func IsKnown(id string) bool {
	_, ok := formats[id]
	return ok
}

// IDs returns the registered format IDs in lexical order.
func IDs() []string {
	ids := make([]string, 0, len(formats))
	for id := range formats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render applies the format's policy to text. Plain text is escaped and line
// breaks become <br />.
func (f *Format) Render(text string) string {
	if f.policy == nil {
		escaped := html.EscapeString(text)
		escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
		return strings.ReplaceAll(escaped, "\n", "<br />\n")
	}
	return f.policy.Sanitize(text)
}

// Render renders text with the format named by formatID, falling back to
// plain text when the format is unknown.
func Render(text, formatID string) string {
	if text == "" {
		return ""
	}
	f, ok := Lookup(formatID)
	if !ok {
		f = formats[Fallback]
	}
	return f.Render(text)
}
