// Package sftpgate brokers all remote filesystem I/O. Every operation
// opens its own short-lived SSH+SFTP connection, runs one logical
// operation, and tears the connection down on every exit path. There is
// no pooling; calls are independent.
package sftpgate

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/quillbox/quillbox/internal/logging"
	"github.com/quillbox/quillbox/internal/metrics"
)

// Kind classifies what exists at a remote path.
type Kind int

const (
	KindNone Kind = iota
	KindFile
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	default:
		return "none"
	}
}

// Entry describes one remote filesystem entry.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

func entryFromInfo(info os.FileInfo) Entry {
	return Entry{
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

// Config holds SFTP connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// Gateway opens per-call scoped connections to the remote store.
type Gateway struct {
	cfg Config
}

// New creates a gateway. Configuration completeness is checked per call,
// not here, so a partially configured process can still start and report
// SFTP_NOT_CONFIGURED to clients.
func New(cfg Config) *Gateway {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{cfg: cfg}
}

// withClient dials, runs fn with a live SFTP client, and guarantees
// teardown. Teardown failures are logged and swallowed so they never mask
// the operation's outcome. Context cancellation closes the underlying
// connection, aborting the in-flight operation.
func (g *Gateway) withClient(ctx context.Context, fn func(*sftp.Client) error) error {
	if g.cfg.Host == "" || g.cfg.User == "" || g.cfg.Password == "" {
		return ErrNotConfigured
	}

	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))
	sshCfg := &ssh.ClientConfig{
		User:            g.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(g.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         g.cfg.Timeout,
	}

	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			logging.Debug("ssh close", zap.Error(cerr))
		}
	}()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("open sftp session: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			logging.Debug("sftp close", zap.Error(cerr))
		}
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := fn(client); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (g *Gateway) run(ctx context.Context, op string, fn func(*sftp.Client) error) error {
	start := time.Now()
	err := g.withClient(ctx, fn)
	metrics.RecordSFTPOperation(op, time.Since(start), err == nil)
	return err
}

// List returns the entries of a remote directory.
func (g *Gateway) List(ctx context.Context, dir string) ([]Entry, error) {
	var entries []Entry
	err := g.run(ctx, "list", func(c *sftp.Client) error {
		infos, err := c.ReadDir(dir)
		if err != nil {
			return wrapRemote("list", dir, err)
		}
		entries = make([]Entry, 0, len(infos))
		for _, info := range infos {
			entries = append(entries, entryFromInfo(info))
		}
		return nil
	})
	return entries, err
}

// Read returns a file's bytes together with its stat metadata.
func (g *Gateway) Read(ctx context.Context, p string) ([]byte, Entry, error) {
	var data []byte
	var entry Entry
	err := g.run(ctx, "read", func(c *sftp.Client) error {
		f, err := c.Open(p)
		if err != nil {
			return wrapRemote("read", p, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return wrapRemote("stat", p, err)
		}
		entry = entryFromInfo(info)

		data, err = io.ReadAll(f)
		if err != nil {
			return wrapRemote("read", p, err)
		}
		return nil
	})
	return data, entry, err
}

// Write creates or truncates a file, creating parent directories first.
func (g *Gateway) Write(ctx context.Context, p string, data []byte) error {
	return g.run(ctx, "write", func(c *sftp.Client) error {
		if err := c.MkdirAll(path.Dir(p)); err != nil {
			return wrapRemote("mkdir", path.Dir(p), err)
		}
		f, err := c.Create(p)
		if err != nil {
			return wrapRemote("write", p, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return wrapRemote("write", p, err)
		}
		if err := f.Close(); err != nil {
			return wrapRemote("write", p, err)
		}
		return nil
	})
}

// Append appends to a file, creating it if absent.
func (g *Gateway) Append(ctx context.Context, p string, data []byte) error {
	return g.run(ctx, "append", func(c *sftp.Client) error {
		f, err := c.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND)
		if err != nil {
			return wrapRemote("append", p, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return wrapRemote("append", p, err)
		}
		if err := f.Close(); err != nil {
			return wrapRemote("append", p, err)
		}
		return nil
	})
}

// Exists reports what exists at a remote path.
func (g *Gateway) Exists(ctx context.Context, p string) (Kind, error) {
	kind := KindNone
	err := g.run(ctx, "exists", func(c *sftp.Client) error {
		info, err := c.Stat(p)
		if err != nil {
			if classify(err) == CodeNotFound {
				return nil
			}
			return wrapRemote("stat", p, err)
		}
		if info.IsDir() {
			kind = KindDir
		} else {
			kind = KindFile
		}
		return nil
	})
	return kind, err
}

// Mkdir creates a directory; recursive creates missing parents too.
func (g *Gateway) Mkdir(ctx context.Context, p string, recursive bool) error {
	return g.run(ctx, "mkdir", func(c *sftp.Client) error {
		if recursive {
			return wrapRemote("mkdir", p, c.MkdirAll(p))
		}
		return wrapRemote("mkdir", p, c.Mkdir(p))
	})
}

// Delete removes a single file.
func (g *Gateway) Delete(ctx context.Context, p string) error {
	return g.run(ctx, "delete", func(c *sftp.Client) error {
		return wrapRemote("delete", p, c.Remove(p))
	})
}

// Rmdir removes a directory. Non-recursive removal of a non-empty
// directory fails with CodeNotEmpty; recursive removal walks depth-first
// within the same connection.
func (g *Gateway) Rmdir(ctx context.Context, p string, recursive bool) error {
	return g.run(ctx, "rmdir", func(c *sftp.Client) error {
		if !recursive {
			infos, err := c.ReadDir(p)
			if err != nil {
				return wrapRemote("rmdir", p, err)
			}
			if len(infos) > 0 {
				return &RemoteError{Op: "rmdir", Path: p, Code: CodeNotEmpty,
					Err: fmt.Errorf("directory not empty")}
			}
			return wrapRemote("rmdir", p, c.RemoveDirectory(p))
		}
		return removeAll(c, p)
	})
}

func removeAll(c *sftp.Client, p string) error {
	infos, err := c.ReadDir(p)
	if err != nil {
		return wrapRemote("rmdir", p, err)
	}
	for _, info := range infos {
		child := path.Join(p, info.Name())
		if info.IsDir() {
			if err := removeAll(c, child); err != nil {
				return err
			}
			continue
		}
		if err := c.Remove(child); err != nil {
			return wrapRemote("delete", child, err)
		}
	}
	return wrapRemote("rmdir", p, c.RemoveDirectory(p))
}

// Rename moves a file or directory, creating the destination's parent
// directory if missing. Overwrite behavior is whatever the remote server
// does natively; it is not intercepted here.
func (g *Gateway) Rename(ctx context.Context, from, to string) error {
	return g.run(ctx, "rename", func(c *sftp.Client) error {
		if err := c.MkdirAll(path.Dir(to)); err != nil {
			return wrapRemote("mkdir", path.Dir(to), err)
		}
		return wrapRemote("rename", from, c.Rename(from, to))
	})
}

// Walk visits every entry under dir depth-first within a single
// connection. fn receives the entry's remote path; returning false stops
// the walk early.
func (g *Gateway) Walk(ctx context.Context, dir string, fn func(remotePath string, e Entry) bool) error {
	return g.run(ctx, "walk", func(c *sftp.Client) error {
		_, err := walkDir(c, dir, fn)
		return err
	})
}

func walkDir(c *sftp.Client, dir string, fn func(string, Entry) bool) (bool, error) {
	infos, err := c.ReadDir(dir)
	if err != nil {
		return false, wrapRemote("walk", dir, err)
	}
	for _, info := range infos {
		child := path.Join(dir, info.Name())
		if !fn(child, entryFromInfo(info)) {
			return false, nil
		}
		if info.IsDir() {
			cont, err := walkDir(c, child, fn)
			if err != nil {
				return false, err
			}
			if !cont {
				return false, nil
			}
		}
	}
	return true, nil
}
