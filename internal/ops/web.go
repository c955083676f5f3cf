package ops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// maxResponseSize bounds fetched bodies.
const maxResponseSize = 10 << 20

// FetchAPI saves the body of the configured API URL to api-data.json.
func (h *Handlers) FetchAPI(ctx context.Context) (string, error) {
	body, err := h.get(ctx, h.apiURL)
	if err != nil {
		return "", err
	}
	if err := h.writeFile("api-data.json", body); err != nil {
		return "", err
	}
	return "Fetched and saved API data.", nil
}

// ScrapeWebsite saves the text content of the configured page, without
// script and style bodies, to scraped-data.txt.
func (h *Handlers) ScrapeWebsite(ctx context.Context) (string, error) {
	body, err := h.get(ctx, h.scrapeURL)
	if err != nil {
		return "", err
	}
	text, err := visibleText(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", h.scrapeURL, err)
	}
	if err := h.writeFile("scraped-data.txt", []byte(text)); err != nil {
		return "", err
	}
	return "Scraped website data.", nil
}

func (h *Handlers) get(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("no URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "taskgate")

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return body, nil
}

// visibleText concatenates every text node outside script, style and
// noscript elements.
func visibleText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String(), nil
}
