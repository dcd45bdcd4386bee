package api

import (
	"strings"
	"testing"
)

func TestRewriteRelativeAttributes(t *testing.T) {
	in := `<html><head></head><body>` +
		`<img src="logo.png">` +
		`<a href="docs/guide.html">guide</a>` +
		`<script src="/lib/app.js"></script>` +
		`</body></html>`

	out := string(rewriteHTML([]byte(in), "/site", "tok123"))

	for _, want := range []string{
		`src="/api/serve?path=%2Fsite%2Flogo.png&token=tok123"`,
		`href="/api/serve?path=%2Fsite%2Fdocs%2Fguide.html&token=tok123"`,
		`src="/api/serve?path=%2Flib%2Fapp.js&token=tok123"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRewriteSkipsNonLocalURLs(t *testing.T) {
	cases := []string{
		`<a href="https://example.com/page">x</a>`,
		`<a href="http://example.com">x</a>`,
		`<script src="//cdn.example.com/lib.js"></script>`,
		`<img src="data:image/png;base64,AAAA">`,
		`<a href="#section">x</a>`,
		`<a href="mailto:a@b.c">x</a>`,
		`<a href="javascript:void(0)">x</a>`,
		`<img src="blob:abc123">`,
	}
	for _, in := range cases {
		out := string(rewriteHTML([]byte(in), "/", "tok"))
		if !strings.Contains(out, in) {
			t.Errorf("input %q was rewritten:\n%s", in, out)
		}
	}
}

func TestRewriteStripsQueryAndFragment(t *testing.T) {
	in := `<a href="page.html?v=2#top">x</a>`
	out := string(rewriteHTML([]byte(in), "/docs", "tok"))
	if !strings.Contains(out, `href="/api/serve?path=%2Fdocs%2Fpage.html&token=tok"`) {
		t.Errorf("query/fragment not stripped:\n%s", out)
	}
}

func TestRewriteLeavesTraversalAlone(t *testing.T) {
	in := `<img src="../../../../etc/passwd">`
	out := string(rewriteHTML([]byte(in), "/site", "tok"))
	if !strings.Contains(out, in) {
		t.Errorf("traversal reference was rewritten instead of skipped:\n%s", out)
	}
}

func TestRewriteSingleQuotes(t *testing.T) {
	in := `<img src='pic.jpg'>`
	out := string(rewriteHTML([]byte(in), "/", "tok"))
	if !strings.Contains(out, `src='/api/serve?path=%2Fpic.jpg&token=tok'`) {
		t.Errorf("single-quoted attribute not rewritten:\n%s", out)
	}
}

func TestBootstrapInjectedAfterHead(t *testing.T) {
	in := `<html><head><meta charset="utf-8"></head><body></body></html>`
	out := string(rewriteHTML([]byte(in), "/site", "tok"))

	headIdx := strings.Index(out, "<head>")
	scriptIdx := strings.Index(out, "<script>")
	metaIdx := strings.Index(out, "<meta")
	if headIdx < 0 || scriptIdx < 0 {
		t.Fatalf("missing head or script:\n%s", out)
	}
	if !(headIdx < scriptIdx && scriptIdx < metaIdx) {
		t.Errorf("bootstrap not injected directly after <head>:\n%s", out)
	}
	for _, want := range []string{"window.fetch", "XMLHttpRequest.prototype.open", `qbBase="/site"`, `qbToken="tok"`} {
		if !strings.Contains(out, want) {
			t.Errorf("bootstrap missing %q", want)
		}
	}
}

func TestBootstrapInjectedWithoutHead(t *testing.T) {
	in := `<p>bare fragment</p>`
	out := string(rewriteHTML([]byte(in), "/", "tok"))
	if !strings.HasPrefix(out, "<script>") {
		t.Errorf("bootstrap not prepended to headless document:\n%s", out)
	}
	if !strings.HasSuffix(out, in) {
		t.Errorf("original content lost:\n%s", out)
	}
}

func TestBootstrapEscapesMarkupInValues(t *testing.T) {
	in := `<html><head></head><body></body></html>`
	out := string(rewriteHTML([]byte(in), `/a</script><script>alert(1)`, "tok"))

	if strings.Contains(out, `qbBase="/a</script>`) {
		t.Errorf("directory name closed the bootstrap script:\n%s", out)
	}
	if !strings.Contains(out, `qbBase="/a\u003c/script\u003e\u003cscript\u003ealert(1)"`) {
		t.Errorf("angle brackets not unicode-escaped:\n%s", out)
	}
	if got := strings.Count(out, "</script>"); got != 1 {
		t.Errorf("bootstrap emitted %d closing script tags, want exactly 1", got)
	}
}

func TestRewriteAlreadyProxied(t *testing.T) {
	in := `<img src="/api/serve?path=%2Fx.png&token=old">`
	out := string(rewriteHTML([]byte(in), "/", "tok"))
	if !strings.Contains(out, in) {
		t.Errorf("already proxied URL was rewritten again:\n%s", out)
	}
}
