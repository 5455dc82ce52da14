package browser

import "strings"

// Categories derived from the navigator user agent.
const (
	CategoryBrowserName = "Browser Name"
	CategoryBrowserCore = "Browser Core"
)

// uaRule maps a user agent token to a browser name. Rules are checked in
// order, so tokens that other browsers also send come last.
type uaRule struct {
	token string
	name  string
}

var nameRules = []uaRule{
	{"Edg/", "Microsoft Edge"},
	{"EdgA/", "Microsoft Edge"},
	{"OPR/", "Opera"},
	{"SamsungBrowser/", "Samsung Internet"},
	{"YaBrowser/", "Yandex Browser"},
	{"Vivaldi/", "Vivaldi"},
	{"HeadlessChrome/", "Headless Chrome"},
	{"CriOS/", "Google Chrome"},
	{"Chrome/", "Google Chrome"},
	{"FxiOS/", "Firefox"},
	{"Firefox/", "Firefox"},
	{"Version/", "Safari"},
}

var coreRules = []uaRule{
	{"Chrome/", "Chromium"},
	{"CriOS/", "Chromium"},
	{"Firefox/", "Firefox"},
	{"FxiOS/", "Safari"},
	{"Safari/", "Safari"},
}

// BrowserFromUserAgent returns the browser name and its engine family for a
// user agent string. Either is empty when the user agent names none of the
// known browsers.
func BrowserFromUserAgent(ua string) (name, core string) {
	return matchRule(nameRules, ua), matchRule(coreRules, ua)
}

func matchRule(rules []uaRule, ua string) string {
	for _, r := range rules {
		if strings.Contains(ua, r.token) {
			return r.name
		}
	}
	return ""
}
