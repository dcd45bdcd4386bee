package pathsafe

import (
	"strings"
	"testing"
)

func TestNormalizeValid(t *testing.T) {
	cases := map[string]string{
		"":                    "/",
		"/":                   "/",
		"docs":                "/docs",
		"/docs":               "/docs",
		"/docs/":              "/docs",
		"//docs///a.txt":      "/docs/a.txt",
		"/docs/./a.txt":       "/docs/a.txt",
		"/docs/sub/../a.txt":  "/docs/a.txt",
		"docs\\win\\file.txt": "/docs/win/file.txt",
		"/a/b/c/../../d":      "/a/d",
	}

	for in, want := range cases {
		got, err := Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRejectsTraversal(t *testing.T) {
	cases := []string{
		"..",
		"/..",
		"../etc/passwd",
		"/../../etc",
		"/docs/../../etc",
		"/docs/../..",
		"//..//..//secret",
		"/a/./../../b",
		"\\..\\..\\windows",
		"/docs/\x00evil",
	}

	for _, in := range cases {
		if _, err := Normalize(in); err == nil {
			t.Errorf("Normalize(%q): expected ErrInvalidPath, got nil", in)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"/", "/docs", "/docs/a.txt", "//x//y/../z", "a/b/c"}
	for _, in := range inputs {
		once, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(Normalize(%q)): %v", in, err)
		}
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestToRemote(t *testing.T) {
	cases := []struct {
		logical, root, want string
	}{
		{"/", "/base", "/base"},
		{"/a.txt", "/base", "/base/a.txt"},
		{"/docs/a.txt", "/base/", "/base/docs/a.txt"},
		{"/a.txt", "/", "/a.txt"},
	}

	for _, c := range cases {
		got, err := ToRemote(c.logical, c.root)
		if err != nil {
			t.Errorf("ToRemote(%q, %q): %v", c.logical, c.root, err)
			continue
		}
		if got != c.want {
			t.Errorf("ToRemote(%q, %q) = %q, want %q", c.logical, c.root, got, c.want)
		}
	}
}

func TestToRemoteBoundary(t *testing.T) {
	// Every valid logical path must land on or under the root as a path
	// boundary, never as a bare string prefix.
	root := "/base"
	for _, logical := range []string{"/", "/x", "/deep/nested/file.bin"} {
		remote, err := ToRemote(logical, root)
		if err != nil {
			t.Fatalf("ToRemote(%q): %v", logical, err)
		}
		if remote != root && !strings.HasPrefix(remote, root+"/") {
			t.Errorf("ToRemote(%q) = %q escapes root %q", logical, remote, root)
		}
	}

	if _, err := ToRemote("/../evil", root); err == nil {
		t.Error("ToRemote with traversal input should fail")
	}
}

func TestDir(t *testing.T) {
	cases := map[string]string{
		"/":                "/",
		"/a.txt":           "/",
		"/docs/a.txt":      "/docs",
		"/docs/sub/b.html": "/docs/sub",
	}
	for in, want := range cases {
		if got := Dir(in); got != want {
			t.Errorf("Dir(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBase(t *testing.T) {
	cases := map[string]string{
		"/":           "/",
		"/a.txt":      "a.txt",
		"/docs/b.css": "b.css",
	}
	for in, want := range cases {
		if got := Base(in); got != want {
			t.Errorf("Base(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoin(t *testing.T) {
	cases := []struct {
		base, rel, want string
	}{
		{"/docs", "styles.css", "/docs/styles.css"},
		{"/docs", "./img/a.png", "/docs/img/a.png"},
		{"/docs/sub", "../a.txt", "/docs/a.txt"},
		{"/", "a.txt", "/a.txt"},
		{"/docs", "/abs.js", "/abs.js"},
	}
	for _, c := range cases {
		got, err := Join(c.base, c.rel)
		if err != nil {
			t.Errorf("Join(%q, %q): %v", c.base, c.rel, err)
			continue
		}
		if got != c.want {
			t.Errorf("Join(%q, %q) = %q, want %q", c.base, c.rel, got, c.want)
		}
	}

	if _, err := Join("/docs", "../../escape"); err == nil {
		t.Error("Join escaping the root should fail")
	}
}
