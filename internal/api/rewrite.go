package api

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/quillbox/quillbox/internal/pathsafe"
)

// Matches src= and href= attributes with single or double quoted
// values. Attribute-syntax matching, not a DOM parse; values inside
// inline scripts or comments are rewritten too.
var attrRegex = regexp.MustCompile(`(?i)\b(src|href)\s*=\s*(["'])([^"']*)(["'])`)

var headRegex = regexp.MustCompile(`(?i)<head[^>]*>`)

// skipPrefixes are URL forms the rewriter must leave alone.
var skipPrefixes = []string{
	"http://", "https://", "//", "data:", "blob:", "#", "mailto:", "javascript:",
}

func skipURL(v string) bool {
	if v == "" {
		return true
	}
	lower := strings.ToLower(v)
	for _, p := range skipPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	// Already routed through the proxy.
	return strings.HasPrefix(v, "/api/serve")
}

// rewriteHTML points every local src/href at the serve endpoint,
// carrying the viewer's token, and injects a bootstrap script so
// runtime fetch/XHR calls resolve through the proxy as well. baseDir is
// the logical directory of the page being served.
func rewriteHTML(data []byte, baseDir, tok string) []byte {
	html := attrRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := attrRegex.FindStringSubmatch(match)
		attr, quote, value := parts[1], parts[2], parts[3]
		if skipURL(value) {
			return match
		}

		// Strip a query/fragment before resolving; the remote store
		// knows nothing about them.
		trimmed := value
		if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
			trimmed = trimmed[:i]
		}
		if trimmed == "" {
			return match
		}

		logical, err := pathsafe.Join(baseDir, trimmed)
		if err != nil {
			return match
		}
		rewritten := "/api/serve?path=" + url.QueryEscape(logical) + "&token=" + url.QueryEscape(tok)
		return attr + "=" + quote + rewritten + quote
	})

	html = injectBootstrap(html, baseDir, tok)
	return []byte(html)
}

// injectBootstrap places the proxy bootstrap right after <head>, or at
// the front of the document when there is no head element.
func injectBootstrap(html, baseDir, tok string) string {
	script := bootstrapScript(baseDir, tok)
	if loc := headRegex.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + script + html[loc[1]:]
	}
	return script + html
}

// bootstrapScript monkey-patches fetch and XMLHttpRequest.open so
// relative URLs issued by page scripts keep resolving through the serve
// endpoint.
func bootstrapScript(baseDir, tok string) string {
	var b strings.Builder
	b.WriteString("<script>(function(){")
	b.WriteString("var qbBase=" + jsString(baseDir) + ";")
	b.WriteString("var qbToken=" + jsString(tok) + ";")
	b.WriteString(`function qbResolve(u){` +
		`if(typeof u!=="string")return u;` +
		`var low=u.toLowerCase();` +
		`if(low.indexOf("http://")===0||low.indexOf("https://")===0||u.indexOf("//")===0||` +
		`low.indexOf("data:")===0||low.indexOf("blob:")===0||u.indexOf("#")===0||` +
		`low.indexOf("mailto:")===0||low.indexOf("javascript:")===0||u.indexOf("/api/serve")===0)return u;` +
		`var p=u.indexOf("/")===0?u:(qbBase==="/"?"/"+u:qbBase+"/"+u);` +
		`return "/api/serve?path="+encodeURIComponent(p)+"&token="+encodeURIComponent(qbToken);}` +
		`var origFetch=window.fetch;` +
		`if(origFetch){window.fetch=function(input,init){` +
		`if(typeof input==="string")input=qbResolve(input);` +
		`return origFetch.call(this,input,init);};}` +
		`var origOpen=XMLHttpRequest.prototype.open;` +
		`XMLHttpRequest.prototype.open=function(method,url){` +
		`arguments[1]=qbResolve(url);` +
		`return origOpen.apply(this,arguments);};`)
	b.WriteString("})();</script>")
	return b.String()
}

// jsString encodes a Go string as a JavaScript string literal. Angle
// brackets are unicode-escaped so a path containing "</script>" cannot
// terminate the inline bootstrap block.
func jsString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '<':
			b.WriteString(`\u003c`)
		case '>':
			b.WriteString(`\u003e`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
