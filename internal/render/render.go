// Package render turns an Item into the display-ready notification that is
// posted to Slack. Rendering is a pure function of the item.
package render

import (
	"encoding/json"

	"github.com/notifyhub/syften-relay/internal/domain"
)

const (
	DefaultTitle      = "New item"
	EmptyBodyText     = "No description provided"
	ViewSourceLabel   = "View Source"
	publishedDateFmt  = "2006-01-02"
	fallbackSeparator = " – "
)

// Block kinds, named after their Slack Block Kit counterparts.
const (
	BlockHeader  = "header"
	BlockSection = "section"
	BlockActions = "actions"
	BlockDivider = "divider"
	BlockContext = "context"
)

// Text object kinds.
const (
	TextPlain    = "plain_text"
	TextMarkdown = "mrkdwn"
)

// Text is a Block Kit text object.
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji *bool  `json:"emoji,omitempty"`
}

// Button is the only interactive element the renderer emits.
type Button struct {
	Type  string `json:"type"`
	Text  Text   `json:"text"`
	URL   string `json:"url"`
	Style string `json:"style,omitempty"`
}

// Block is one display block. Only the fields relevant to Type are set:
// Text for header and section, Button for actions, Context for context.
type Block struct {
	Type    string
	Text    *Text
	Button  *Button
	Context []Text
}

// MarshalJSON encodes the block in Block Kit form.
func (b Block) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type     string `json:"type"`
		Text     *Text  `json:"text,omitempty"`
		Elements []any  `json:"elements,omitempty"`
	}

	w := wire{Type: b.Type, Text: b.Text}
	if b.Button != nil {
		w.Elements = append(w.Elements, *b.Button)
	}
	for _, t := range b.Context {
		w.Elements = append(w.Elements, t)
	}
	return json.Marshal(w)
}

// Notification is the rendered form of an item: fallback text for clients
// that cannot show blocks, plus the ordered blocks.
type Notification struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks"`
}

// Render builds the notification for it. Every valid item renders.
func Render(it domain.Item) Notification {
	title := it.Title
	if title == "" {
		title = DefaultTitle
	}

	fallback := title
	if it.ItemURL != "" {
		fallback = title + fallbackSeparator + it.ItemURL
	}

	body := it.Text
	if body == "" {
		body = EmptyBodyText
	}

	blocks := []Block{
		{Type: BlockHeader, Text: plain(title)},
		{Type: BlockSection, Text: &Text{Type: TextMarkdown, Text: body}},
	}

	if it.ItemURL != "" {
		blocks = append(blocks, Block{
			Type: BlockActions,
			Button: &Button{
				Type:  "button",
				Text:  *plain(ViewSourceLabel),
				URL:   it.ItemURL,
				Style: "primary",
			},
		})
	}

	blocks = append(blocks, Block{Type: BlockDivider})

	var footer []Text
	if label := it.SourceLabel(); label != "" {
		footer = append(footer, Text{Type: TextMarkdown, Text: "*Source:* " + label})
	}
	if !it.Timestamp.IsZero() {
		footer = append(footer, Text{Type: TextMarkdown, Text: "*Published:* " + it.Timestamp.Format(publishedDateFmt)})
	}
	if len(footer) > 0 {
		blocks = append(blocks, Block{Type: BlockContext, Context: footer})
	}

	return Notification{Text: fallback, Blocks: blocks}
}

func plain(s string) *Text {
	emoji := false
	return &Text{Type: TextPlain, Text: s, Emoji: &emoji}
}
