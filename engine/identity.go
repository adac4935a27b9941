package engine

import (
	"fmt"
	"net/url"
	"sort"

	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/pricescout/fingerprint"
	"github.com/use-agent/pricescout/models"
)

// TLSProfile pairs a ClientHello with the Chrome version whose user agents
// must accompany it. A Chrome 131 hello with a Chrome 120 user agent is an
// easy tell.
type TLSProfile struct {
	Name        string
	Hello       tls.ClientHelloID
	ChromeMajor int
}

var tlsProfiles = map[string]TLSProfile{
	"chrome_120":    {Name: "chrome_120", Hello: tls.HelloChrome_120, ChromeMajor: 120},
	"chrome_120_pq": {Name: "chrome_120_pq", Hello: tls.HelloChrome_120_PQ, ChromeMajor: 120},
	"chrome_131":    {Name: "chrome_131", Hello: tls.HelloChrome_131, ChromeMajor: 131},
	"chrome_133":    {Name: "chrome_133", Hello: tls.HelloChrome_133, ChromeMajor: 133},
}

// LookupTLSProfile returns the profile registered under name.
func LookupTLSProfile(name string) (TLSProfile, bool) {
	p, ok := tlsProfiles[name]
	return p, ok
}

// TLSProfileNames lists every registered profile name, sorted.
func TLSProfileNames() []string {
	names := make([]string, 0, len(tlsProfiles))
	for n := range tlsProfiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func resolveProfiles(names []string) ([]TLSProfile, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("engine: no TLS profiles configured")
	}
	out := make([]TLSProfile, 0, len(names))
	for _, n := range names {
		p, ok := LookupTLSProfile(n)
		if !ok {
			return nil, fmt.Errorf("engine: unknown TLS profile %q (known: %v)", n, TLSProfileNames())
		}
		out = append(out, p)
	}
	return out, nil
}

// newIdentity draws a complete client identity for one attempt.
func newIdentity(profile TLSProfile, proxy *url.URL) models.FetchIdentity {
	ua := fingerprint.RandomUserAgent(profile.ChromeMajor)
	fp := fingerprint.Synthesize().WithUserAgent(ua)

	id := models.FetchIdentity{
		TLSProfile: profile.Name,
		UserAgent:  ua,
		Headers:    fingerprint.DeriveHeaders(fp),
	}
	if proxy != nil {
		id.Proxy = proxy.Redacted()
	}
	return id
}
