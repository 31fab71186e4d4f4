package alkoteka

import (
	"fmt"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Product is one scraped product record
type Product struct {
	Timestamp     int64             `json:"timestamp"`
	RPC           string            `json:"RPC"`
	URL           string            `json:"url"`
	Title         string            `json:"title"`
	MarketingTags []string          `json:"marketing_tags"`
	Brand         string            `json:"brand"`
	Section       []string          `json:"section"`
	PriceData     PriceData         `json:"price_data"`
	Stock         Stock             `json:"stock"`
	Assets        Assets            `json:"assets"`
	Metadata      map[string]string `json:"metadata"`
	Variants      int               `json:"variants"`
}

// ItemKey identifies the product across crawls
func (p Product) ItemKey() string {
	return p.RPC
}

type PriceData struct {
	Current  float64 `json:"current"`
	Original float64 `json:"original"`
	// SaleTag is empty when there is no previous price to compare with
	SaleTag string `json:"sale_tag,omitempty"`
}

type Stock struct {
	InStock bool `json:"in_stock"`
	Count   int  `json:"count"`
}

type Assets struct {
	MainImage string   `json:"main_image"`
	SetImages []string `json:"set_images"`
	View360   []string `json:"view360"`
	Video     []string `json:"video"`
}

const (
	volumeFilter     = "obem"
	brandCode        = "brend"
	descriptionTitle = "Описание"
	descriptionKey   = "__description"
)

func buildProduct(d *productDetail, slug, siteURL string, ts int64) Product {
	p := Product{
		Timestamp:     ts,
		RPC:           string(d.VendorCode),
		URL:           fmt.Sprintf("%s/product/%s/%s", siteURL, d.Category.Slug, slug),
		Title:         productTitle(d),
		MarketingTags: make([]string, 0, len(d.FilterLabels)),
		Brand:         brand(d),
		Section:       section(d.Category),
		PriceData:     priceData(d.Price, d.PrevPrice),
		Stock:         Stock{InStock: d.Available, Count: int(d.QuantityTotal)},
		Assets: Assets{
			MainImage: d.ImageURL,
			SetImages: []string{},
			View360:   []string{},
			Video:     []string{},
		},
		Metadata: map[string]string{descriptionKey: description(d.TextBlocks)},
		Variants: 1,
	}
	for _, fl := range d.FilterLabels {
		p.MarketingTags = append(p.MarketingTags, fl.Title)
	}
	for title, value := range characteristics(d.DescriptionBlocks) {
		p.Metadata[title] = value
	}
	return p
}

func productTitle(d *productDetail) string {
	title := d.Name
	for _, fl := range d.FilterLabels {
		if fl.Filter == volumeFilter {
			if fl.Title != "" {
				title += " " + fl.Title
			}
			break
		}
	}
	return norm.NFC.String(strings.TrimSpace(title))
}

func brand(d *productDetail) string {
	for _, b := range d.DescriptionBlocks {
		if b.Code == brandCode && len(b.Values) > 0 {
			return b.Values[0].Name
		}
	}
	return ""
}

func section(c categoryRef) []string {
	parent := ""
	if c.Parent != nil {
		parent = c.Parent.Name
	}
	return []string{parent, c.Name}
}

func characteristics(blocks []descriptionBlock) map[string]string {
	out := make(map[string]string)
	for _, b := range blocks {
		switch b.Type {
		case "range":
			out[b.Title] = string(b.Max) + b.Unit
		case "select":
			if len(b.Values) > 0 {
				out[b.Title] = b.Values[0].Name
			} else {
				out[b.Title] = ""
			}
		case "flag":
			out[b.Title] = string(b.Placeholder)
		}
	}
	return out
}

// priceData falls back to the previous price when the current one is missing
// or zero. Percentages round half to even.
func priceData(price, prev *Number) PriceData {
	var current, original float64
	if prev != nil {
		original = float64(*prev)
	}
	if price != nil && *price != 0 {
		current = float64(*price)
	} else {
		current = original
	}

	pd := PriceData{Current: current, Original: original}
	if original == 0 {
		pd.Original = current
		return pd
	}
	discount := 100 - math.RoundToEven(100*current/original)
	pd.SaleTag = fmt.Sprintf("Скидка %d%%", int(discount))
	return pd
}

func description(blocks []textBlock) string {
	var b strings.Builder
	for _, tb := range blocks {
		if tb.Title == descriptionTitle {
			b.WriteString(strings.ReplaceAll(tb.Content, "<br>\n", ". "))
		}
	}
	return stripMarkup(b.String())
}

func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return norm.NFC.String(strings.TrimSpace(s))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return norm.NFC.String(strings.TrimSpace(s))
	}
	return norm.NFC.String(strings.TrimSpace(doc.Text()))
}
