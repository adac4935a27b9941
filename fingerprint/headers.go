package fingerprint

import (
	"strconv"

	"github.com/use-agent/pricescout/models"
)

// Referer sent with every navigation; the site expects same-origin traffic.
const Referer = "https://www.trovaprezzi.it/"

// DeriveHeaders builds the header set a browser with profile p
// would send on a top-level navigation. Every cache layer between the
// client and the origin is told not to serve a stored copy.
//
// When p carries no user agent, one matching a current Chrome is drawn.
func DeriveHeaders(p Profile) models.HeaderSet {
	ua := p.UserAgent
	if ua == "" {
		ua = RandomUserAgent(131)
	}

	hs := make(models.HeaderSet, 0, 24)
	add := func(name, value string) {
		if value != "" {
			hs = append(hs, models.Header{Name: name, Value: value})
		}
	}

	add("Sec-Ch-Ua", secCHUA(ua))
	add("Sec-Ch-Ua-Mobile", "?0")
	add("Sec-Ch-Ua-Platform", uaPlatform(ua))
	add("Upgrade-Insecure-Requests", "1")
	add("User-Agent", ua)
	add("Accept", pick(acceptValues))
	add("Sec-Fetch-Site", "same-origin")
	add("Sec-Fetch-Mode", "navigate")
	add("Sec-Fetch-User", "?1")
	add("Sec-Fetch-Dest", "document")
	add("Referer", Referer)
	add("Accept-Encoding", "gzip, deflate, br")
	add("Accept-Language", p.AcceptLanguage)
	if p.DoNotTrack {
		add("Dnt", "1")
	}
	add("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	add("Pragma", "no-cache")
	add("Expires", "0")
	add("Viewport-Width", strconv.Itoa(p.ViewportWidth))
	add("Viewport-Height", strconv.Itoa(p.ViewportHeight))
	add("Device-Memory", strconv.Itoa(p.DeviceMemory))
	add("X-Browser-Fingerprint", p.Hash())
	return hs
}
