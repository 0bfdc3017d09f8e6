package email

import (
	"html"
	"regexp"
	"strings"
)

const bodyStyle = `font-family: Calibri, Arial, sans-serif; font-size: 11pt; color: #1f1f1f; line-height: 1.35;`

var (
	boldTokenRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	headingRe   = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	orderedRe   = regexp.MustCompile(`^\d+[.)]\s+`)
)

// MarkdownToPlain strips markdown decoration for the text/plain part and
// collapses runs of blank lines.
func MarkdownToPlain(body string) string {
	var out []string
	prevBlank := false
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			line = strings.TrimSpace(m[2])
			if len(m[1]) <= 2 {
				line = strings.ToUpper(line)
			}
		}
		if trimmed == "---" {
			line = strings.Repeat("-", 40)
		}
		line = strings.ReplaceAll(line, "**", "")
		if strings.TrimSpace(line) == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
			out = append(out, "")
			continue
		}
		prevBlank = false
		out = append(out, line)
	}
	return strings.Trim(strings.Join(out, "\n"), "\n") + "\n"
}

// MarkdownToHTML renders the subset of markdown reports use: headings, bold,
// horizontal rules and flat bullet or numbered lists.
func MarkdownToHTML(body string) string {
	var b strings.Builder
	b.WriteString(`<html><body style="` + bodyStyle + `">`)

	openList := ""
	closeList := func() {
		if openList != "" {
			b.WriteString(`</` + openList + `>`)
			openList = ""
		}
	}
	startList := func(tag string) {
		if openList == tag {
			return
		}
		closeList()
		b.WriteString(`<` + tag + ` style="margin: 0 0 0 18px; padding-left: 18px;">`)
		openList = tag
	}

	for _, raw := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(raw)
		switch {
		case trimmed == "":
			closeList()
			b.WriteString(`<div style="height: 10px;"></div>`)
		case trimmed == "---" || trimmed == "***":
			closeList()
			b.WriteString(`<hr style="border: 0; border-top: 1px solid #d0d0d0; margin: 12px 0;">`)
		case headingRe.MatchString(trimmed):
			closeList()
			m := headingRe.FindStringSubmatch(trimmed)
			size := map[int]string{1: "16pt", 2: "14pt"}[len(m[1])]
			if size == "" {
				size = "12pt"
			}
			b.WriteString(`<div style="font-weight: 700; font-size: ` + size + `; margin: 12px 0 6px 0;">` + renderInlineBold(strings.TrimSpace(m[2])) + `</div>`)
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			startList("ul")
			b.WriteString(`<li style="margin: 2px 0;">` + renderInlineBold(strings.TrimSpace(trimmed[2:])) + `</li>`)
		case orderedRe.MatchString(trimmed):
			startList("ol")
			b.WriteString(`<li style="margin: 2px 0;">` + renderInlineBold(orderedRe.ReplaceAllString(trimmed, "")) + `</li>`)
		default:
			closeList()
			b.WriteString(`<div style="margin: 2px 0;">` + renderInlineBold(trimmed) + `</div>`)
		}
	}
	closeList()
	b.WriteString(`</body></html>`)
	return b.String()
}

func renderInlineBold(s string) string {
	matches := boldTokenRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return html.EscapeString(s)
	}
	var out strings.Builder
	last := 0
	for _, m := range matches {
		out.WriteString(html.EscapeString(s[last:m[0]]))
		out.WriteString("<strong>")
		out.WriteString(html.EscapeString(s[m[2]:m[3]]))
		out.WriteString("</strong>")
		last = m[1]
	}
	out.WriteString(html.EscapeString(s[last:]))
	return out.String()
}

func normalizeCRLF(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}
