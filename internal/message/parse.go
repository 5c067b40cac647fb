// Package message turns raw RFC 5322 messages into triage input.
package message

import (
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

// Parsed holds the parts of a message the classifier looks at
type Parsed struct {
	MessageID string
	Subject   string
	Sender    string
	To        []string
	Text      string
}

// Parse reads a message and extracts its headers and readable text.
// text/plain is preferred; text/html is reduced to its text nodes.
func Parse(r io.Reader) (*Parsed, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	p := &Parsed{}
	p.MessageID, _ = mr.Header.MessageID()
	p.Subject, _ = mr.Header.Subject()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		p.Sender = formatAddress(from[0])
	} else {
		p.Sender = mr.Header.Get("From")
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, a := range to {
			p.To = append(p.To, a.Address)
		}
	}

	var plain, rich string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if gomessage.IsUnknownCharset(err) {
				continue
			}
			// Keep whatever text was read before the broken part
			if plain != "" || rich != "" {
				break
			}
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		switch {
		case contentType == "text/plain" && plain == "":
			b, err := io.ReadAll(part.Body)
			if err == nil {
				plain = string(b)
			}
		case contentType == "text/html" && rich == "":
			text, err := htmlText(part.Body)
			if err == nil {
				rich = text
			}
		}
	}

	if plain != "" {
		p.Text = plain
	} else {
		p.Text = rich
	}
	return p, nil
}

// Message converts the parsed message to pipeline input with a snippet of
// at most snippetLen runes
func (p *Parsed) Message(id string, tp *utils.TextProcessor, snippetLen int) core.Message {
	if id == "" {
		id = p.MessageID
	}
	return core.Message{
		ID:      id,
		Subject: p.Subject,
		Sender:  p.Sender,
		Snippet: tp.Snippet(p.Text, snippetLen),
	}
}

func formatAddress(a *mail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

func htmlText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return sb.String(), nil
			}
			return sb.String(), z.Err()
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isHidden(tag []byte) bool {
	switch string(tag) {
	case "script", "style", "head", "title":
		return true
	}
	return false
}
