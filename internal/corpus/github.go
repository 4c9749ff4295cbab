package corpus

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/hyperjump/kaiwa/internal/config"
)

const (
	githubTimeout    = 30 * time.Second
	maxGitHubBlob    = 1 << 20
	defaultGitHubRef = "main"
)

// GitHubSource reads documents from a repository tree at a ref.
type GitHubSource struct {
	client  *gh.Client
	owner   string
	repo    string
	ref     string
	prefix  string
	include []string
}

// NewGitHubSource creates a source for cfg. A token, when configured, is sent
// through an oauth2 static token source.
func NewGitHubSource(ctx context.Context, cfg config.GitHubConfig, include []string) (*GitHubSource, error) {
	var hc *http.Client
	if token := cfg.Token(); token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = githubTimeout
	return newGitHubSource(gh.NewClient(hc), cfg, include)
}

func newGitHubSource(client *gh.Client, cfg config.GitHubConfig, include []string) (*GitHubSource, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github source: owner and repo are required")
	}
	if err := validatePatterns(include); err != nil {
		return nil, err
	}
	ref := cfg.Ref
	if ref == "" {
		ref = defaultGitHubRef
	}
	prefix := strings.Trim(cfg.PathPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &GitHubSource{
		client:  client,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		ref:     ref,
		prefix:  prefix,
		include: includeOrDefault(include),
	}, nil
}

// Name describes the source for logs.
func (g *GitHubSource) Name() string {
	return fmt.Sprintf("github:%s/%s@%s/%s", g.owner, g.repo, g.ref, g.prefix)
}

// Documents fetches every matching blob under the path prefix.
func (g *GitHubSource) Documents(ctx context.Context) ([]RawDocument, error) {
	tree, _, err := g.client.Git.GetTree(ctx, g.owner, g.repo, g.ref, true)
	if err != nil {
		return nil, fmt.Errorf("get tree %s: %w", g.Name(), err)
	}
	if tree.GetTruncated() {
		return nil, fmt.Errorf("get tree %s: tree listing truncated; narrow path_prefix", g.Name())
	}

	var docs []RawDocument
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		full := entry.GetPath()
		if !strings.HasPrefix(full, g.prefix) {
			continue
		}
		rel := strings.TrimPrefix(full, g.prefix)
		if !matchesAny(g.include, rel) || entry.GetSize() > maxGitHubBlob {
			continue
		}
		body, err := g.fetchBlob(ctx, entry.GetSHA())
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", full, err)
		}
		docs = append(docs, RawDocument{Path: rel, Body: body})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func (g *GitHubSource) fetchBlob(ctx context.Context, sha string) ([]byte, error) {
	blob, _, err := g.client.Git.GetBlob(ctx, g.owner, g.repo, sha)
	if err != nil {
		return nil, err
	}
	if blob.GetEncoding() == "base64" {
		return base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.GetContent(), "\n", ""))
	}
	return []byte(blob.GetContent()), nil
}
