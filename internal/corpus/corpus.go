// Package corpus discovers the text files to index under a data directory
// and reads them on demand.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
)

// ErrTooLarge marks a file over the configured size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// Entry is one discovered file. Name is the base file name, Path the
// absolute path.
type Entry struct {
	Name string
	Path string
	Size int64
}

// File is an Entry together with its content.
type File struct {
	Entry
	Content string
}

type Loader struct {
	dir         string
	extensions  map[string]struct{}
	maxFileSize int64
	logger      *slog.Logger
}

func NewLoader(cfg config.CorpusConfig) *Loader {
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Loader{
		dir:         cfg.Dir,
		extensions:  exts,
		maxFileSize: cfg.MaxFileSize,
		logger:      logger.WithComponent("corpus"),
	}
}

func (l *Loader) Dir() string {
	return l.dir
}

// Matches reports whether name has one of the configured extensions,
// ignoring case.
func (l *Loader) Matches(name string) bool {
	_, ok := l.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Scan walks the data directory and returns the matching regular files in
// lexical path order. Entries that cannot be listed are logged and skipped;
// a missing root directory is an error.
func (l *Loader) Scan(ctx context.Context) ([]Entry, error) {
	root, err := filepath.Abs(l.dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "resolving corpus directory")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "opening corpus directory")
	}
	if !info.IsDir() {
		return nil, apperrors.Errorf(apperrors.ErrInvalidArgument, "corpus path %s is not a directory", root)
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			l.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !l.Matches(d.Name()) {
			return nil
		}
		var size int64
		if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		entries = append(entries, Entry{Name: d.Name(), Path: path, Size: size})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "walking corpus")
	}
	l.logger.Info("corpus scanned", "dir", root, "files", len(entries))
	return entries, nil
}

// Read loads the content of e. Files over the size limit fail with
// ErrTooLarge.
func (l *Loader) Read(e Entry) (File, error) {
	f, err := os.Open(e.Path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	limit := l.maxFileSize
	if limit <= 0 {
		limit = 1<<63 - 1
	}
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return File{}, err
	}
	if int64(len(data)) == limit {
		var probe [1]byte
		if n, _ := f.Read(probe[:]); n > 0 {
			return File{}, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
		}
	}
	return File{Entry: e, Content: string(data)}, nil
}

// Files reads every entry in order. Read failures are yielded as
// *document.Failure values so that index builds can skip the file and
// report it by name.
func (l *Loader) Files(entries []Entry) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		for _, e := range entries {
			file, err := l.Read(e)
			if err != nil {
				if !yield(File{Entry: e}, &document.Failure{Source: e.Name, Err: err}) {
					return
				}
				continue
			}
			if !yield(file, nil) {
				return
			}
		}
	}
}
