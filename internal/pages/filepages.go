package pages

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"
)

// FilePages discovers page components under a directory and keeps their
// pages in the registry.
type FilePages struct {
	fs       billy.Filesystem
	root     string
	registry *Registry
	log      *logrus.Entry
}

// NewFilePages serves components found under root in fsys.
func NewFilePages(fsys billy.Filesystem, root string, reg *Registry, log *logrus.Entry) *FilePages {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FilePages{
		fs:       fsys,
		root:     path.Clean(root),
		registry: reg,
		log:      log.WithField("component", "filepages"),
	}
}

func (fp *FilePages) isComponent(file string) bool {
	if !ComponentExts[strings.ToLower(path.Ext(file))] {
		return false
	}
	return fp.root == "." || strings.HasPrefix(file, fp.root+"/")
}

// Discover creates a page for every component under the root.
func (fp *FilePages) Discover(ctx context.Context) error {
	var files []string
	err := util.Walk(fp.fs, fp.root, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && fp.isComponent(file) {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fp.log.WithField("root", fp.root).Debug("pages directory missing")
			return nil
		}
		return err
	}

	fp.registry.DisableIndices()
	defer fp.registry.EnableIndices()
	for _, file := range files {
		if err := fp.Handle(ctx, file, OpAdd); err != nil {
			return err
		}
	}
	fp.log.WithField("pages", len(files)).Info("discovered page components")
	return nil
}

// Handle applies one file event: add creates the page, update re-parses the
// component and updates the page in place, remove deletes its pages.
func (fp *FilePages) Handle(ctx context.Context, file string, op Op) error {
	file = path.Clean(filepath.ToSlash(file))
	if !fp.isComponent(file) {
		return nil
	}
	if op == OpRemove {
		n := fp.registry.RemovePagesByComponent(file)
		fp.log.WithFields(logrus.Fields{"file": file, "pages": n}).Debug("removed component")
		return nil
	}

	src, err := util.ReadFile(fp.fs, file)
	if err != nil {
		return err
	}
	meta, err := ParseComponent(ctx, file, src)
	if err != nil {
		return err
	}
	opts := PageOptions{
		Path:      CreatePagePath(file, fp.root),
		Component: file,
		Kind:      KindStatic,
	}
	if op == OpAdd {
		if p, ok := fp.registry.FindPage(opts.Path); !ok || p.Component != file {
			fp.registry.SetMeta(file, meta)
			_, err = fp.registry.CreatePage(opts)
			return err
		}
	}
	_, err = fp.registry.UpdateRoute(opts, meta)
	return err
}

// Watch follows changes under dir, the on-disk location of the filesystem
// root, until ctx is done. Bursts of events are coalesced per file and
// applied with the registry indices disabled.
func (fp *FilePages) Watch(ctx context.Context, dir string, interval time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watchTree := func(base string) {
		_ = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if err := w.Add(p); err != nil {
					fp.log.WithError(err).WithField("dir", p).Warn("cannot watch directory")
				}
			}
			return nil
		})
	}
	watchTree(filepath.Join(dir, filepath.FromSlash(fp.root)))

	co := NewCoalescer(interval, func(batch []Pending[string]) {
		fp.registry.DisableIndices()
		defer fp.registry.EnableIndices()
		for _, p := range batch {
			if err := fp.Handle(ctx, p.Key, p.Op); err != nil {
				fp.log.WithError(err).WithField("file", p.Key).Warn("page component update failed")
			}
		}
	})
	defer co.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					watchTree(ev.Name)
					continue
				}
			}
			rel, err := filepath.Rel(dir, ev.Name)
			if err != nil {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				co.Push(filepath.ToSlash(rel), OpAdd)
			case ev.Has(fsnotify.Write):
				co.Push(filepath.ToSlash(rel), OpUpdate)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				co.Push(filepath.ToSlash(rel), OpRemove)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fp.log.WithError(err).Warn("watcher error")
		}
	}
}
