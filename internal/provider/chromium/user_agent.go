package chromium

import "strings"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

func DefaultUserAgent() string {
	return defaultUserAgent
}

// UserAgent returns ua when it looks like a browser user agent and the
// default desktop Chrome one otherwise. Headless Chromium advertises itself
// as HeadlessChrome, which some shops reject.
func UserAgent(ua string) string {
	v := strings.TrimSpace(ua)
	if v == "" || !looksLikeBrowserUA(v) {
		return defaultUserAgent
	}
	return v
}

func looksLikeBrowserUA(ua string) bool {
	s := strings.ToLower(ua)
	if strings.Contains(s, "headless") {
		return false
	}
	return strings.HasPrefix(s, "mozilla/")
}
