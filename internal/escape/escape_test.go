package escape

import (
	"errors"
	"strings"
	"testing"
)

func TestHTMLEscapesSpecialCharacters(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{`<b>"Tom" & 'Jerry'</b>`, "&lt;b&gt;&quot;Tom&quot; &amp; &#39;Jerry&#39;&lt;/b&gt;"},
		{42, "42"},
		{errors.New("a<b"), "a&lt;b"},
	}
	for _, tc := range cases {
		if got := HTML(tc.in); got != tc.want {
			t.Fatalf("HTML(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAttrEscapesQuotes(t *testing.T) {
	got := Attr(`x" onclick="alert(1)`)
	if strings.Contains(got, `"`) {
		t.Fatalf("expected quotes to be escaped, got %q", got)
	}
}

func TestURLRejectsScriptScheme(t *testing.T) {
	if got := URL("javascript:alert(1)"); got != "" {
		t.Fatalf("expected empty url, got %q", got)
	}
	if got := URL("https://example.com/a?b=1&c=2"); got != "https://example.com/a?b=1&amp;c=2" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := URL("images/devices/a.png"); got != "images/devices/a.png" {
		t.Fatalf("unexpected relative url %q", got)
	}
}

func TestFragmentStripsScriptsKeepsHooks(t *testing.T) {
	in := `<div class="devices-container" id="grid" data-limit="5"><script>alert(1)</script><p>ok</p></div>`
	got := Fragment(in)
	if strings.Contains(got, "<script") {
		t.Fatalf("script survived sanitization: %s", got)
	}
	for _, want := range []string{`class="devices-container"`, `id="grid"`, `data-limit="5"`, "<p>ok</p>"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %s", want, got)
		}
	}
}
