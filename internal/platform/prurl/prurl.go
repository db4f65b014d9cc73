// Package prurl parses pull and merge request URLs into the platform,
// repository, and number a review submission needs. Operator and CLI
// submissions identify changes by URL; webhooks never pass through here.
package prurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/reviewhub/reviewhub/internal/model"
)

// Ref identifies a pull or merge request parsed from a URL
type Ref struct {
	Platform string // github, gitea, gitlab
	Host     string // e.g. github.com, git.example.com
	RepoID   string // owner/name; nested GitLab groups keep their slashes in owner
	Number   int
}

// Parser resolves PR URLs, using registered host mappings for
// self-hosted instances whose hostname names no platform.
type Parser struct {
	hosts map[string]string
}

// NewParser creates a parser with no custom host mappings
func NewParser() *Parser {
	return &Parser{hosts: make(map[string]string)}
}

// RegisterHost maps a custom host to a platform, e.g.
// RegisterHost("git.example.com", "gitea") for a self-hosted instance.
func (p *Parser) RegisterHost(host, platformName string) {
	p.hosts[strings.ToLower(host)] = platformName
}

// RegisterHostsFromConfig registers the hosts of all configured
// self-hosted platform URLs
func (p *Parser) RegisterHostsFromConfig(platforms []struct{ Type, URL string }) {
	for _, pc := range platforms {
		if pc.URL == "" {
			continue
		}
		host := hostOf(pc.URL)
		if host != "" && host != "github.com" && host != "gitlab.com" && host != "gitea.com" {
			p.RegisterHost(host, pc.Type)
		}
	}
}

var (
	githubPattern = regexp.MustCompile(`^/([^/]+)/([^/]+)/pull/(\d+)`)
	giteaPattern  = regexp.MustCompile(`^/([^/]+)/([^/]+)/pulls/(\d+)`)
	gitlabPattern = regexp.MustCompile(`^/(.+?)/(?:-/)?merge_requests/(\d+)`)
)

// Parse resolves a PR/MR URL. Supported forms:
//
//	https://github.com/owner/repo/pull/123
//	https://gitea.example.com/owner/repo/pulls/123
//	https://gitlab.com/group/subgroup/repo/-/merge_requests/123
func (p *Parser) Parse(raw string) (*Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty PR URL")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return nil, fmt.Errorf("URL has no host: %s", raw)
	}

	platformName := p.detectPlatform(host, u.Path)
	if platformName == "" {
		return nil, fmt.Errorf("cannot determine platform for host %s", host)
	}

	ref, err := parsePath(platformName, u.Path)
	if err != nil {
		return nil, err
	}
	ref.Platform = platformName
	ref.Host = host
	return ref, nil
}

func (p *Parser) detectPlatform(host, path string) string {
	if platformName, ok := p.hosts[host]; ok {
		return platformName
	}

	switch {
	case strings.Contains(host, "github"):
		return model.PlatformGitHub
	case strings.Contains(host, "gitlab"):
		return model.PlatformGitLab
	case strings.Contains(host, "gitea"):
		return model.PlatformGitea
	}

	// Unknown host: the path shape still identifies the platform
	switch {
	case strings.Contains(path, "/pull/"):
		return model.PlatformGitHub
	case strings.Contains(path, "/pulls/"):
		return model.PlatformGitea
	case strings.Contains(path, "/merge_requests/"):
		return model.PlatformGitLab
	}
	return ""
}

func parsePath(platformName, path string) (*Ref, error) {
	switch platformName {
	case model.PlatformGitHub, model.PlatformGitea:
		pattern := githubPattern
		if platformName == model.PlatformGitea {
			pattern = giteaPattern
		}
		m := pattern.FindStringSubmatch(path)
		if len(m) != 4 {
			return nil, fmt.Errorf("unrecognized %s PR path: %s", platformName, path)
		}
		number, err := strconv.Atoi(m[3])
		if err != nil || number < 1 {
			return nil, fmt.Errorf("invalid PR number in %s", path)
		}
		return &Ref{RepoID: m[1] + "/" + m[2], Number: number}, nil

	case model.PlatformGitLab:
		m := gitlabPattern.FindStringSubmatch(path)
		if len(m) != 3 {
			return nil, fmt.Errorf("unrecognized merge request path: %s", path)
		}
		number, err := strconv.Atoi(m[2])
		if err != nil || number < 1 {
			return nil, fmt.Errorf("invalid merge request number in %s", path)
		}
		repoID := strings.Trim(m[1], "/")
		if !strings.Contains(repoID, "/") {
			return nil, fmt.Errorf("merge request path has no repository: %s", path)
		}
		return &Ref{RepoID: repoID, Number: number}, nil

	default:
		return nil, fmt.Errorf("unsupported platform %q", platformName)
	}
}

func hostOf(raw string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.Index(host, "/"); i > 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}

// String renders the reference for logs
func (r *Ref) String() string {
	return fmt.Sprintf("%s#%d (%s)", r.RepoID, r.Number, r.Platform)
}

// DefaultParser is the shared parser used when no custom hosts apply
var DefaultParser = NewParser()

// Parse resolves a PR URL with the default parser
func Parse(raw string) (*Ref, error) {
	return DefaultParser.Parse(raw)
}
