// Package draft builds post drafts for the queue from raw text, a URL, or
// a local file.
package draft

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// maxFetchSize caps how much of a remote page is read.
const maxFetchSize = 5 << 20 // 5MB

// maxMessageLen caps the draft message; anything longer is cut at a rune
// boundary with an ellipsis.
const maxMessageLen = 2000

const fetchTimeout = 15 * time.Second

// Draft is a post ready to enqueue.
type Draft struct {
	Message string
	LinkURL string
}

// FromText builds a draft from literal text.
func FromText(text string) (Draft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Draft{}, fmt.Errorf("draft text is empty")
	}
	return Draft{Message: clip(text)}, nil
}

// FromURL fetches the page and builds a draft from its title and
// description, keeping the URL as the post link. A nil client uses
// http.DefaultClient.
func FromURL(ctx context.Context, client *http.Client, rawURL string) (Draft, error) {
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Draft{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Draft{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Draft{}, fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	title, desc, err := extractMeta(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return Draft{}, fmt.Errorf("parsing %s: %w", rawURL, err)
	}

	message := title
	if desc != "" {
		if message != "" {
			message += "\n\n"
		}
		message += desc
	}
	if message == "" {
		return Draft{}, fmt.Errorf("no usable title or description at %s", rawURL)
	}
	return Draft{Message: clip(message), LinkURL: rawURL}, nil
}

// FromFile builds a draft from a local file. PDFs are converted to plain
// text; everything else is read as text.
func FromFile(path string) (Draft, error) {
	var text string
	var err error

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = pdfText(path)
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	}
	if err != nil {
		return Draft{}, fmt.Errorf("reading %s: %w", path, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Draft{}, fmt.Errorf("file %s has no text content", path)
	}
	return Draft{Message: clip(text)}, nil
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// extractMeta pulls <title> and the meta description out of an HTML document.
func extractMeta(r io.Reader) (title, description string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "name", "property":
						name = strings.ToLower(a.Val)
					case "content":
						content = a.Val
					}
				}
				if description == "" && (name == "description" || name == "og:description") {
					description = strings.TrimSpace(content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, description, nil
}

func clip(s string) string {
	runes := []rune(s)
	if len(runes) <= maxMessageLen {
		return s
	}
	return string(runes[:maxMessageLen]) + "…"
}
