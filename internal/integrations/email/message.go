package email

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	AttachmentName = "feedback_report.md"
	base64LineLen  = 76
)

// Message is a report email ready to be rendered as RFC 5322 bytes.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string // markdown
	Date    time.Time
}

// Bytes renders a multipart/mixed message: a multipart/alternative part with
// plain and HTML renditions of Body, then Body attached verbatim.
func (m Message) Bytes() []byte {
	mixed := "mixed-" + uuid.NewString()
	alt := "alt-" + uuid.NewString()

	domain := "localhost"
	if at := strings.LastIndex(m.From, "@"); at >= 0 && at < len(m.From)-1 {
		domain = strings.Trim(m.From[at+1:], "> ")
	}

	var out strings.Builder
	headers := []string{
		"From: " + m.From,
		"To: " + strings.Join(m.To, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", m.Subject),
		"Date: " + m.Date.Format(time.RFC1123Z),
		fmt.Sprintf("Message-ID: <%s@%s>", uuid.NewString(), domain),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q", mixed),
	}
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")

	out.WriteString("--" + mixed + "\r\n")
	out.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", alt))

	plain := normalizeCRLF(MarkdownToPlain(m.Body))
	out.WriteString("--" + alt + "\r\n")
	out.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	out.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	out.WriteString(plain)
	if !strings.HasSuffix(plain, "\r\n") {
		out.WriteString("\r\n")
	}

	out.WriteString("--" + alt + "\r\n")
	out.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	out.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	out.WriteString(MarkdownToHTML(m.Body))
	out.WriteString("\r\n--" + alt + "--\r\n")

	out.WriteString("--" + mixed + "\r\n")
	out.WriteString(fmt.Sprintf("Content-Type: text/markdown; charset=UTF-8; name=%q\r\n", AttachmentName))
	out.WriteString("Content-Transfer-Encoding: base64\r\n")
	out.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", AttachmentName))
	writeBase64Lines(&out, []byte(m.Body))
	out.WriteString("--" + mixed + "--\r\n")

	return []byte(out.String())
}

func writeBase64Lines(out *strings.Builder, data []byte) {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > base64LineLen {
		out.WriteString(enc[:base64LineLen] + "\r\n")
		enc = enc[base64LineLen:]
	}
	out.WriteString(enc + "\r\n")
}
