// Package filesystem provides the filesystem source plugin and the
// markdown transformer it usually pairs with.
package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/pages"
	"github.com/gridsome/gridsome/internal/plugins"
	"github.com/gridsome/gridsome/internal/store"
)

const SourceName = "source-filesystem"

// Options configure a filesystem source.
type Options struct {
	// Path is the directory to load, relative to the project root.
	Path string `json:"path"`
	// TypeName of the collection the files become.
	TypeName string `json:"typeName"`
	// Route for the collection. Without one, nodes get a path derived from
	// their file name, under PathPrefix.
	Route      string            `json:"route,omitempty"`
	PathPrefix string            `json:"pathPrefix,omitempty"`
	Refs       map[string]string `json:"refs,omitempty"`
}

var mimeTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
}

// Register adds the filesystem source and the markdown transformer to r.
func Register(r *plugins.Registry, fsys billy.Filesystem, log *logrus.Entry) error {
	err := r.Register(SourceName, func(options map[string]any) (plugins.Plugin, error) {
		var opts Options
		if err := plugins.DecodeOptions(SourceName, options, &opts); err != nil {
			return nil, err
		}
		src, err := NewSource(fsys, opts, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	})
	if err != nil {
		return err
	}
	return r.Register(MarkdownName, func(options map[string]any) (plugins.Plugin, error) {
		var opts MarkdownOptions
		if err := plugins.DecodeOptions(MarkdownName, options, &opts); err != nil {
			return nil, err
		}
		return NewMarkdown(opts), nil
	})
}

// Source loads every file under a directory as a node.
type Source struct {
	fs   billy.Filesystem
	opts Options
	log  *logrus.Entry
}

func NewSource(fsys billy.Filesystem, opts Options, log *logrus.Entry) (*Source, error) {
	if opts.TypeName == "" {
		return nil, errdefs.NewConfig(SourceName, "typeName is required")
	}
	if opts.Path == "" {
		opts.Path = "."
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Source{
		fs:   fsys,
		opts: opts,
		log:  log.WithFields(logrus.Fields{"component": SourceName, "typeName": opts.TypeName}),
	}, nil
}

func (s *Source) Name() string { return SourceName }

func (s *Source) LoadSource(ctx context.Context, api plugins.SourceAPI) error {
	coll, err := api.AddCollection(s.opts.TypeName, store.CollectionOptions{
		Route: s.opts.Route,
		Refs:  s.opts.Refs,
	})
	if err != nil {
		return err
	}

	root := path.Clean(s.opts.Path)
	var files []string
	err = util.Walk(s.fs, root, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.WithField("path", root).Warn("source directory missing")
			return nil
		}
		return err
	}
	slices.Sort(files)

	var loaded int
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := s.loadFile(ctx, api, coll, root, file)
		if err != nil {
			return err
		}
		if ok {
			loaded++
		}
	}
	s.log.WithField("nodes", loaded).Info("loaded source")
	return nil
}

func (s *Source) loadFile(ctx context.Context, api plugins.SourceAPI, coll *store.Collection, root, file string) (bool, error) {
	mimeType := mimeTypes[strings.ToLower(path.Ext(file))]
	if mimeType == "" {
		s.log.WithField("file", file).Debug("skipping file without mime type")
		return false, nil
	}
	src, err := util.ReadFile(s.fs, file)
	if err != nil {
		return false, err
	}
	in, ok, err := api.Transform(ctx, mimeType, src)
	if err != nil {
		return false, errdefs.NewValidation(SourceName, file, "%v", err)
	}
	if !ok {
		s.log.WithFields(logrus.Fields{"file": file, "mimeType": mimeType}).Debug("no transformer")
		return false, nil
	}

	info, err := s.fs.Stat(file)
	if err != nil {
		return false, err
	}
	in.Internal = store.Internal{Origin: file, MimeType: mimeType, Timestamp: info.ModTime()}
	if in.ID == "" {
		in.ID = store.MakeUID(file)
	}
	if in.Title == "" {
		in.Title = titleFromFile(file)
	}
	if in.Path == "" && s.opts.Route == "" {
		in.Path = path.Join("/", s.opts.PathPrefix, pages.CreatePagePath(file, root))
	}

	if _, err := coll.GetNode(in.ID); err == nil {
		_, err = coll.UpdateNode(in)
		return err == nil, err
	}
	_, err = coll.AddNode(in)
	return err == nil, err
}

// titleFromFile turns "getting-started.md" into "Getting Started".
func titleFromFile(file string) string {
	base := strings.TrimSuffix(path.Base(file), path.Ext(file))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return cases.Title(language.English).String(base)
}
