// Package scrape downloads documents and pulls readable text out of web
// pages.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20
	userAgent      = "enrich/1.0 (+https://github.com/MikeSquared-Agency/enrich)"
)

// ErrBodyTooLarge is returned when a response exceeds the body size cap.
// Documents are never silently truncated.
var ErrBodyTooLarge = errors.New("response body too large")

type Fetcher struct {
	client  *http.Client
	logger  *slog.Logger
	maxBody int64
}

func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		maxBody: maxBodyBytes,
	}
}

// Download fetches url and returns its body decoded to UTF-8.
func (f *Fetcher) Download(ctx context.Context, url string) (string, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	b, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(b), nil
}

// PageText fetches url and returns its visible text. Any failure is logged
// and yields "".
func (f *Fetcher) PageText(ctx context.Context, url string) string {
	body, err := f.get(ctx, url)
	if err != nil {
		f.logger.Error("page fetch failed", "url", url, "error", err)
		return ""
	}
	defer body.Close()

	text, err := VisibleText(body)
	if err != nil {
		f.logger.Error("page parse failed", "url", url, "error", err)
		return ""
	}
	return text
}

type decodedBody struct {
	io.Reader
	io.Closer
}

func (f *Fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	limited := &cappedReader{r: resp.Body, left: f.maxBody}
	r, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return decodedBody{Reader: r, Closer: resp.Body}, nil
}

// cappedReader passes through at most left bytes and fails with
// ErrBodyTooLarge if the underlying reader has more.
type cappedReader struct {
	r    io.Reader
	left int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.left <= 0 {
		var one [1]byte
		n, err := c.r.Read(one[:])
		if n > 0 {
			return 0, ErrBodyTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > c.left {
		p = p[:c.left]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	return n, err
}

// VisibleText parses an HTML document and returns the text of its <main>
// element, else its first <article>, else the first div with class
// "content", else the whole document. Text runs are trimmed and joined with
// single spaces; script, style and noscript content is skipped.
func VisibleText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	root := find(doc, isTag("main"))
	if root == nil {
		root = find(doc, isTag("article"))
	}
	if root == nil {
		root = find(doc, func(n *html.Node) bool { return isTag("div")(n) && hasClass(n, "content") })
	}
	if root == nil {
		root = doc
	}

	var parts []string
	collectText(root, &parts)
	return strings.Join(parts, " "), nil
}

func isTag(name string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*parts = append(*parts, s)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
