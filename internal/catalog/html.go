package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// KindHTML 抓取 chocolatey.org 包页面，取第一个 title 含 "nupkg" 的链接。
const KindHTML = "html"

func init() {
	MustRegister(KindHTML, newHTMLResolver)
}

type htmlResolver struct {
	opts Options
}

func newHTMLResolver(opts Options) (Resolver, error) {
	if _, err := url.Parse(opts.CatalogURL); err != nil || opts.CatalogURL == "" {
		return nil, fmt.Errorf("html resolver: invalid catalog url %q", opts.CatalogURL)
	}
	return &htmlResolver{opts: opts}, nil
}

func (r *htmlResolver) Resolve(ctx context.Context, identifier string) (string, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return "", resolutionError(KindHTML, identifier, errors.New("empty package identifier"))
	}
	pageURL := r.opts.CatalogURL + url.PathEscape(id)

	resp, err := get(ctx, r.opts, pageURL, "text/html")
	if err != nil {
		return "", resolutionError(KindHTML, id, err)
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", resolutionError(KindHTML, id, fmt.Errorf("parsing %s: %w", pageURL, err))
	}
	href, ok := findPackageLink(doc)
	if !ok {
		return "", resolutionError(KindHTML, id, fmt.Errorf("%w on %s", ErrPackageLinkMissing, pageURL))
	}
	link, err := resp.Request.URL.Parse(href)
	if err != nil {
		return "", resolutionError(KindHTML, id, fmt.Errorf("invalid package link %q: %w", href, err))
	}

	r.opts.Logger.WithFields(logrus.Fields{
		"action":  "resolve",
		"package": id,
		"url":     link.String(),
	}).Debug("package_resolved")
	return link.String(), nil
}

// findPackageLink 按文档顺序深度优先查找第一个 title 含 "nupkg" 且带 href 的 <a>。
func findPackageLink(node *html.Node) (string, bool) {
	if node.Type == html.ElementNode && node.Data == "a" {
		var title, href string
		var hasHref bool
		for _, attr := range node.Attr {
			switch strings.ToLower(attr.Key) {
			case "title":
				title = attr.Val
			case "href":
				href, hasHref = attr.Val, true
			}
		}
		if hasHref && strings.Contains(title, "nupkg") {
			return href, true
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if href, ok := findPackageLink(child); ok {
			return href, true
		}
	}
	return "", false
}
