package fingerprint

import (
	"fmt"
	"strconv"
	"strings"
)

var uaTemplates = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
	"Mozilla/5.0 (Windows NT 11.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 12_6_1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
}

// UserAgentsFor returns desktop Chrome user agents for a major version.
// Chrome reports a frozen "major.0.0.0" version plus a few patch builds.
func UserAgentsFor(major int) []string {
	versions := []string{
		fmt.Sprintf("%d.0.0.0", major),
		fmt.Sprintf("%d.0.1.0", major),
		fmt.Sprintf("%d.0.2.0", major),
	}
	out := make([]string, 0, len(uaTemplates)*len(versions))
	for _, tpl := range uaTemplates {
		for _, v := range versions {
			out = append(out, fmt.Sprintf(tpl, v))
		}
	}
	return out
}

// RandomUserAgent picks a user agent for the given Chrome major version.
func RandomUserAgent(major int) string {
	return pick(UserAgentsFor(major))
}

// chromeMajor extracts the Chrome major version from a user agent, or "".
func chromeMajor(ua string) string {
	idx := strings.Index(ua, "Chrome/")
	if idx == -1 {
		return ""
	}
	rest := ua[idx+len("Chrome/"):]
	if j := strings.IndexAny(rest, ". "); j != -1 {
		rest = rest[:j]
	}
	return rest
}

// secCHUA builds the Sec-CH-UA brand list for a Chrome user agent.
func secCHUA(ua string) string {
	major := chromeMajor(ua)
	if major == "" {
		return ""
	}
	grease := `"Not_A Brand";v="8"`
	if n, err := strconv.Atoi(major); err == nil && n >= 130 {
		grease = `"Not?A_Brand";v="24"`
	}
	return fmt.Sprintf(`"Google Chrome";v="%s", "Chromium";v="%s", %s`, major, major, grease)
}

// uaPlatform maps a user agent to the Sec-CH-UA-Platform value.
func uaPlatform(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return `"Windows"`
	case strings.Contains(ua, "Macintosh"):
		return `"macOS"`
	default:
		return `"Linux"`
	}
}
