package alkoteka

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number accepts JSON numbers, numeric strings and null
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", b, err)
	}
	*n = Number(f)
	return nil
}

// Raw keeps a scalar as the text it was sent as
type Raw string

func (r *Raw) UnmarshalJSON(b []byte) error {
	*r = Raw(rawText(b))
	return nil
}

func rawText(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	var s string
	if b[0] == '"' && json.Unmarshal(b, &s) == nil {
		return s
	}
	return string(b)
}

type categoryRef struct {
	Slug   string       `json:"slug"`
	Name   string       `json:"name"`
	Parent *categoryRef `json:"parent"`
}

type listProduct struct {
	Slug     string      `json:"slug"`
	Name     string      `json:"name"`
	Category categoryRef `json:"category"`
}

type listResponse struct {
	Results []listProduct `json:"results"`
}

type filterLabel struct {
	Filter string `json:"filter"`
	Title  string `json:"title"`
}

type blockValue struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type descriptionBlock struct {
	Code        string       `json:"code"`
	Title       string       `json:"title"`
	Type        string       `json:"type"`
	Max         Raw          `json:"max"`
	Unit        string       `json:"unit"`
	Placeholder Raw          `json:"placeholder"`
	Values      []blockValue `json:"values"`
}

type textBlock struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type productDetail struct {
	VendorCode        Raw                `json:"vendor_code"`
	Name              string             `json:"name"`
	Price             *Number            `json:"price"`
	PrevPrice         *Number            `json:"prev_price"`
	Available         bool               `json:"available"`
	QuantityTotal     Number             `json:"quantity_total"`
	ImageURL          string             `json:"image_url"`
	Category          categoryRef        `json:"category"`
	FilterLabels      []filterLabel      `json:"filter_labels"`
	DescriptionBlocks []descriptionBlock `json:"description_blocks"`
	TextBlocks        []textBlock        `json:"text_blocks"`
}

type detailResponse struct {
	Results json.RawMessage `json:"results"`
}
