package sftpgate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestClassifyFSErrors(t *testing.T) {
	if got := classify(os.ErrNotExist); got != CodeNotFound {
		t.Errorf("classify(ErrNotExist) = %v, want CodeNotFound", got)
	}
	if got := classify(os.ErrPermission); got != CodePermission {
		t.Errorf("classify(ErrPermission) = %v, want CodePermission", got)
	}
	if got := classify(errors.New("boom")); got != CodeOther {
		t.Errorf("classify(other) = %v, want CodeOther", got)
	}
}

func TestClassifyWrapped(t *testing.T) {
	wrapped := fmt.Errorf("open: %w", os.ErrNotExist)
	if got := classify(wrapped); got != CodeNotFound {
		t.Errorf("classify(wrapped ErrNotExist) = %v, want CodeNotFound", got)
	}
}

func TestWrapRemote(t *testing.T) {
	if wrapRemote("read", "/x", nil) != nil {
		t.Error("wrapRemote(nil) should be nil")
	}

	err := wrapRemote("read", "/x", os.ErrNotExist)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RemoteError, got %T", err)
	}
	if re.Op != "read" || re.Path != "/x" || re.Code != CodeNotFound {
		t.Errorf("unexpected RemoteError: %+v", re)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound should match")
	}
	if IsNotEmpty(err) {
		t.Error("IsNotEmpty should not match a not-found error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("RemoteError should unwrap to the underlying error")
	}
}

func TestNotConfiguredBeforeDial(t *testing.T) {
	g := New(Config{})
	_, err := g.List(context.Background(), "/")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}

	g = New(Config{Host: "host"})
	if err := g.Write(context.Background(), "/x", nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured without credentials, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindNone.String() != "none" || KindFile.String() != "file" || KindDir.String() != "directory" {
		t.Error("unexpected Kind string values")
	}
}
