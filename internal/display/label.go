package display

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pixelmine/shopd/internal/shop"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultTemplate is the label shown over a shop when no custom
// template is configured.
const DefaultTemplate = `{{.Owner}}'s shop
{{title .Item}}
{{- if .Selling}}
Buy for {{.SellPrice}}{{end}}
{{- if .Buying}}
Sell for {{.BuyPrice}}{{end}}
{{if .OutOfStock}}OUT OF STOCK{{else}}{{.Stock}} in stock{{end}}`

// DefaultWrapWidth keeps label lines readable at a distance.
const DefaultWrapWidth = 28

// labelData is what a label template renders against. Prices arrive
// pre-formatted.
type labelData struct {
	Owner      string
	Item       string
	SellPrice  string
	BuyPrice   string
	Selling    bool
	Buying     bool
	Stock      int
	OutOfStock bool
}

// Label renders shop state into floating-text lines.
type Label struct {
	tmpl    *template.Template
	printer *message.Printer
	width   int
}

func NewLabel(text string, width int) (*Label, error) {
	if text == "" {
		text = DefaultTemplate
	}
	if width <= 0 {
		width = DefaultWrapWidth
	}

	tmpl, err := template.New("label").Funcs(sprig.FuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing label template: %w", err)
	}

	return &Label{
		tmpl:    tmpl,
		printer: message.NewPrinter(language.English),
		width:   width,
	}, nil
}

// Render produces the label text for one shop.
func (l *Label) Render(s shop.Shop) (string, error) {
	data := labelData{
		Owner:      s.Owner,
		Item:       s.Item.Name(),
		SellPrice:  l.printer.Sprintf("%.2f", s.SellPrice),
		BuyPrice:   l.printer.Sprintf("%.2f", s.BuyPrice),
		Selling:    s.SellsToPlayers(),
		Buying:     s.BuysFromPlayers(),
		Stock:      s.Stock,
		OutOfStock: s.Stock == 0,
	}

	var buf bytes.Buffer
	if err := l.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering label: %w", err)
	}

	return wordwrap.String(buf.String(), l.width), nil
}
