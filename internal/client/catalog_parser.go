package client

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"dealfeed/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// Strips currency symbols and thousands separators from "$1,299.00".
var displayPriceRegex = regexp.MustCompile(`[^0-9.\-]`)

type catalogParser struct {
	baseURL string
	format  string
}

func newCatalogParser(baseURL, format string) *catalogParser {
	return &catalogParser{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		format:  format,
	}
}

type productsResponse struct {
	Products []domain.ProductRecord `json:"products"`
	PageInfo struct {
		HasNextPage bool `json:"has_next_page"`
	} `json:"page_info"`
}

// ParsePage decodes one listing page in the configured format.
func (p *catalogParser) ParsePage(body []byte, number int) (*Page, error) {
	if p.format == "html" {
		return p.parseHTMLPage(body, number)
	}
	return p.parseJSONPage(body, number)
}

func (p *catalogParser) parseJSONPage(body []byte, number int) (*Page, error) {
	var resp productsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	products := resp.Products[:0]
	for _, product := range resp.Products {
		if product.ID == "" {
			log.Debugf("Skipping product without id on page %d", number)
			continue
		}
		products = append(products, product)
	}

	return &Page{
		Number:   number,
		Products: products,
		HasNext:  resp.PageInfo.HasNextPage,
	}, nil
}

// parseHTMLPage reads a storefront listing: one [data-product-id] card per
// product and an a[rel=next] link while more pages exist.
func (p *catalogParser) parseHTMLPage(body []byte, number int) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := &Page{
		Number:   number,
		Products: make([]domain.ProductRecord, 0),
		HasNext:  doc.Find("a[rel='next'], link[rel='next']").Length() > 0,
	}

	doc.Find("[data-product-id]").Each(func(i int, card *goquery.Selection) {
		id := strings.TrimSpace(card.AttrOr("data-product-id", ""))
		if id == "" {
			return
		}

		currency := card.AttrOr("data-currency", "")
		product := domain.ProductRecord{
			ID:          id,
			Title:       strings.TrimSpace(card.Find(".product-title").First().Text()),
			Vendor:      strings.TrimSpace(card.Find(".product-vendor").First().Text()),
			ProductType: strings.TrimSpace(card.Find(".product-type").First().Text()),
			ImageURL:    p.absoluteURL(card.Find("img").First().AttrOr("src", "")),
			Price:       domain.NewMoney(p.cardPrice(card, "data-price", ".price"), currency),
		}

		if compareAt := p.cardPrice(card, "data-compare-at-price", ".compare-at-price"); compareAt != "" {
			m := domain.NewMoney(compareAt, currency)
			product.CompareAtPrice = &m
		}

		page.Products = append(page.Products, product)
	})

	log.Debugf("Parsed HTML catalog page %d with %d products", number, len(page.Products))
	return page, nil
}

// cardPrice prefers the machine-readable attribute and falls back to the
// displayed price text.
func (p *catalogParser) cardPrice(card *goquery.Selection, attr, selector string) string {
	if v, ok := card.Attr(attr); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	text := strings.TrimSpace(card.Find(selector).First().Text())
	if text == "" {
		return ""
	}
	return displayPriceRegex.ReplaceAllString(text, "")
}

func (p *catalogParser) absoluteURL(href string) string {
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return p.baseURL + href
	default:
		return href
	}
}
