package catalog

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// KindOData 查询 NuGet v2 OData 源（community.chocolatey.org/api/v2）。
const KindOData = "odata"

func init() {
	MustRegister(KindOData, newODataResolver)
}

type odataResolver struct {
	opts Options
	repo string
}

func newODataResolver(opts Options) (Resolver, error) {
	repo := strings.TrimRight(opts.RepositoryURL, "/")
	if repo == "" {
		return nil, fmt.Errorf("odata resolver: repository url is required")
	}
	if _, err := url.Parse(repo); err != nil {
		return nil, fmt.Errorf("odata resolver: invalid repository url %q: %w", repo, err)
	}
	return &odataResolver{opts: opts, repo: repo}, nil
}

func (r *odataResolver) Resolve(ctx context.Context, identifier string) (string, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return "", resolutionError(KindOData, identifier, errors.New("empty package identifier"))
	}

	resp, err := get(ctx, r.opts, r.latestQuery(id), "application/atom+xml,application/xml")
	if err != nil {
		return "", resolutionError(KindOData, id, err)
	}
	defer resp.Body.Close()

	entries, err := ParseFeed(resp.Body)
	if err != nil {
		return "", resolutionError(KindOData, id, err)
	}
	if len(entries) == 0 {
		return "", resolutionError(KindOData, id, fmt.Errorf("%w in feed", ErrPackageLinkMissing))
	}

	entry := entries[0]
	link := entry.DownloadURL
	if link == "" {
		if entry.ID == "" || entry.Version == "" {
			return "", resolutionError(KindOData, id, fmt.Errorf("%w: entry has neither src nor id/version", ErrPackageLinkMissing))
		}
		link = fmt.Sprintf("%s/package/%s/%s", r.repo, url.PathEscape(entry.ID), url.PathEscape(entry.Version))
	}

	r.opts.Logger.WithFields(logrus.Fields{
		"action":  "resolve",
		"package": id,
		"version": entry.Version,
		"url":     link,
	}).Debug("package_resolved")
	return link, nil
}

// latestQuery 构造 Packages()?$filter=(tolower(Id) eq '<id>') and IsLatestVersion&$top=1。
func (r *odataResolver) latestQuery(id string) string {
	escaped := strings.ReplaceAll(strings.ToLower(id), "'", "''")
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("(tolower(Id) eq '%s') and IsLatestVersion", escaped))
	query.Set("$top", "1")
	return r.repo + "/Packages()?" + query.Encode()
}

// FeedEntry 是 Atom 源中一个包版本的精简信息。
type FeedEntry struct {
	ID          string
	Version     string
	Title       string
	DownloadURL string
	PackageHash string
	HashAlgo    string
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string       `xml:"title"`
	Content atomContent  `xml:"content"`
	Props   packageProps `xml:"properties"`
}

type atomContent struct {
	Type string `xml:"type,attr"`
	Src  string `xml:"src,attr"`
}

type packageProps struct {
	ID              string `xml:"Id"`
	Version         string `xml:"Version"`
	PackageHash     string `xml:"PackageHash"`
	PackageHashAlgo string `xml:"PackageHashAlgorithm"`
}

// ParseFeed parses a NuGet v2 Atom feed.
func ParseFeed(r io.Reader) ([]FeedEntry, error) {
	var feed atomFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	entries := make([]FeedEntry, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		id := entry.Props.ID
		if id == "" {
			id = strings.TrimSpace(entry.Title)
		}
		entries = append(entries, FeedEntry{
			ID:          id,
			Version:     entry.Props.Version,
			Title:       entry.Title,
			DownloadURL: strings.TrimSpace(entry.Content.Src),
			PackageHash: entry.Props.PackageHash,
			HashAlgo:    entry.Props.PackageHashAlgo,
		})
	}
	return entries, nil
}
