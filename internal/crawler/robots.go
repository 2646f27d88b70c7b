package crawler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	robotstxt "github.com/temoto/robotstxt"
)

// robotsPolicy is the parsed robots.txt group for the crawler's
// User-Agent. A nil policy allows everything.
type robotsPolicy struct {
	group *robotstxt.Group
}

// Allows reports whether the policy permits fetching rawURL.
func (p *robotsPolicy) Allows(rawURL string) bool {
	if p == nil || p.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return p.group.Test(path)
}

// fetchRobots fetches and parses <origin>/robots.txt. Any fetch or
// parse failure, including non-2xx, means "no policy".
func fetchRobots(ctx context.Context, origin *url.URL, userAgent string) *robotsPolicy {
	robotsURL := &url.URL{
		Scheme: origin.Scheme,
		Host:   origin.Host,
		Path:   "/robots.txt",
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return &robotsPolicy{group: data.FindGroup(userAgent)}
}

// policySet caches one robots policy per origin so multi-seed jobs
// fetch robots.txt once per host.
type policySet struct {
	userAgent string
	byOrigin  map[string]*robotsPolicy
}

func newPolicySet(userAgent string) *policySet {
	return &policySet{
		userAgent: userAgent,
		byOrigin:  make(map[string]*robotsPolicy),
	}
}

func (ps *policySet) Allows(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	origin := u.Scheme + "://" + u.Host
	policy, ok := ps.byOrigin[origin]
	if !ok {
		policy = fetchRobots(ctx, u, ps.userAgent)
		ps.byOrigin[origin] = policy
	}
	return policy.Allows(rawURL)
}
