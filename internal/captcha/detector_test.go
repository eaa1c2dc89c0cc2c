package captcha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectWidgetSiteKey(t *testing.T) {
	d := NewDetector("fallback-key", "search")
	html := `
	<form>
	  <div class="g-recaptcha" data-sitekey="6LeJ-widget-key" data-action="case_search"></div>
	</form>`

	params, ok := d.Detect(html, "https://court.example/search")
	require.True(t, ok)
	assert.Equal(t, "6LeJ-widget-key", params.SiteKey)
	assert.Equal(t, "case_search", params.Action)
	assert.Equal(t, "https://court.example/search", params.PageURL)
	assert.Equal(t, "RecaptchaV3TaskProxyless", params.Type)
}

func TestDetectRenderScriptKey(t *testing.T) {
	d := NewDetector("", "search")
	html := `<script src="https://www.google.com/recaptcha/api.js?render=6LeJ-render-key"></script>`

	params, ok := d.Detect(html, "https://court.example/")
	require.True(t, ok)
	assert.Equal(t, "6LeJ-render-key", params.SiteKey)
	assert.Equal(t, "search", params.Action)
}

func TestDetectFallsBackToConfiguredKey(t *testing.T) {
	d := NewDetector("configured-key", "search")
	html := `<script>grecaptcha.execute().then(submitForm);</script>`

	params, ok := d.Detect(html, "https://court.example/")
	require.True(t, ok)
	assert.Equal(t, "configured-key", params.SiteKey)
}

func TestDetectPlainContent(t *testing.T) {
	d := NewDetector("configured-key", "search")
	html := `<html><body><table><tr><td>OPEN</td></tr></table></body></html>`

	_, ok := d.Detect(html, "https://court.example/")
	assert.False(t, ok)
}

func TestDetectMarkerWithoutAnyKey(t *testing.T) {
	// A marker with no derivable site key is unsolvable; the page is
	// treated as content so extraction can report it empty.
	d := NewDetector("", "search")
	html := `<script>grecaptcha.execute().then(submitForm);</script>`

	_, ok := d.Detect(html, "https://court.example/")
	assert.False(t, ok)
}
