package captcha

import (
	"casescraper/internal/domain"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// renderKeyRe pulls the site key out of a recaptcha/api.js?render=KEY
// script reference when no widget element carries it.
var renderKeyRe = regexp.MustCompile(`recaptcha/(?:api|enterprise)\.js\?render=([\w-]+)`)

// Markers whose presence in a page body indicates a reCAPTCHA gate rather
// than real search content.
var challengeMarkers = []string{
	"g-recaptcha",
	"grecaptcha.execute",
	"recaptcha/api.js",
}

// Detector recognizes the court website's reCAPTCHA gate and extracts the
// parameters the solving service needs. A configured site key and action
// act as fallbacks when the page does not expose them in markup.
type Detector struct {
	siteKey string
	action  string
}

func NewDetector(siteKey, action string) *Detector {
	return &Detector{siteKey: siteKey, action: action}
}

// Detect reports whether html is a challenge page. Detection is by semantic
// markers (widget class, api.js script, grecaptcha call), not layout.
func (d *Detector) Detect(html, pageURL string) (*domain.ChallengeParams, bool) {
	lower := strings.ToLower(html)
	found := false
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}

	params := &domain.ChallengeParams{
		SiteKey: d.siteKey,
		PageURL: pageURL,
		Action:  d.action,
		Type:    "RecaptchaV3TaskProxyless",
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		if key, ok := doc.Find("[data-sitekey]").First().Attr("data-sitekey"); ok && key != "" {
			params.SiteKey = key
		} else if m := renderKeyRe.FindStringSubmatch(html); m != nil {
			params.SiteKey = m[1]
		}
		if action, ok := doc.Find("[data-action]").First().Attr("data-action"); ok && action != "" {
			params.Action = action
		}
	}

	if params.SiteKey == "" {
		// Marker without any derivable key is unsolvable; treat as content
		// and let extraction report the page empty.
		return nil, false
	}
	return params, true
}
