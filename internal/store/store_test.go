package store

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/gridsome/gridsome/internal/errdefs"
	"github.com/gridsome/gridsome/internal/refs"
)

func newPosts(t *testing.T, opts CollectionOptions) (*Store, *Collection) {
	t.Helper()
	s := New(nil)
	c, err := s.AddCollection("Post", opts)
	if err != nil {
		t.Fatalf("AddCollection: %v", err)
	}
	return s, c
}

func TestStore_RoundTrip(t *testing.T) {
	s, c := newPosts(t, CollectionOptions{})
	date := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	in := NodeInput{
		ID:      "42",
		Title:   "Hello World",
		Date:    date,
		Content: "<p>hi</p>",
		Fields: map[string]any{
			"views":  7,
			"tags":   []any{"go", "web"},
			"nested": map[string]any{"a": 1},
		},
	}
	if _, err := c.AddNode(in); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	n, err := s.GetNode("Post", "42")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if !reflect.DeepEqual(n.Fields, in.Fields) {
		t.Errorf("Fields = %#v, want %#v", n.Fields, in.Fields)
	}
	if n.Title != in.Title || !n.Date.Equal(date) || n.Content != in.Content {
		t.Errorf("builtins not preserved: %+v", n)
	}
	if n.Slug != "hello-world" {
		t.Errorf("Slug = %q, want hello-world", n.Slug)
	}

	byUID, err := s.GetNodeByUID(n.UID)
	if err != nil || byUID != n {
		t.Fatalf("GetNodeByUID = %v, %v", byUID, err)
	}
	if n.UID != MakeUID("Post-42") {
		t.Errorf("UID = %q, want MakeUID(Post-42)", n.UID)
	}

	// input maps are copied
	in.Fields["views"] = 8
	if n.Fields["views"] != 7 {
		t.Error("stored node aliases the input map")
	}
}

func TestStore_DefaultID(t *testing.T) {
	_, c := newPosts(t, CollectionOptions{})
	a, err := c.AddNode(NodeInput{Title: "A", Content: "same"})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if len(a.ID) != 32 {
		t.Errorf("ID = %q, want a 32-char hash", a.ID)
	}
	if _, err := c.AddNode(NodeInput{Title: "A", Content: "same"}); !errdefs.IsValidation(err) {
		t.Errorf("identical input should hash to a duplicate id, got %v", err)
	}
}

func TestStore_PathCollision(t *testing.T) {
	s, c := newPosts(t, CollectionOptions{Route: "/blog/:slug"})
	if _, err := c.AddNode(NodeInput{ID: "1", Title: "Hello"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	_, err := c.AddNode(NodeInput{ID: "2", Title: "Hello"})
	if !errdefs.IsPathCollision(err) || !errdefs.IsValidation(err) {
		t.Fatalf("expected path collision, got %v", err)
	}
	var pc *errdefs.PathCollisionError
	if !errors.As(err, &pc) || pc.Existing != "Post:1" || pc.Conflicting != "Post:2" || pc.Path != "/blog/hello" {
		t.Errorf("collision = %+v", pc)
	}
	if c.Len() != 1 {
		t.Errorf("failed add must not store the node, Len = %d", c.Len())
	}

	pages, err := s.AddCollection("Page", CollectionOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pages.AddNode(NodeInput{ID: "x", Path: "blog/hello/"}); !errdefs.IsPathCollision(err) {
		t.Errorf("cross-collection collision not detected: %v", err)
	}
}

func TestStore_RouteParams(t *testing.T) {
	s := New(nil)
	if _, err := s.AddCollection("Author", CollectionOptions{}); err != nil {
		t.Fatal(err)
	}
	c, err := s.AddCollection("Post", CollectionOptions{
		Route: "/:year/:month/:day/:author/:category_raw/:slug",
		Refs:  map[string]string{"author": "Author"},
	})
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.AddNode(NodeInput{
		ID:    "1",
		Title: "Über Cool",
		Date:  time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC),
		Fields: map[string]any{
			"author":   "Jane Doe",
			"category": "Raw Value",
		},
	})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if want := "/2021/01/05/jane-doe/Raw Value/uber-cool"; n.Path != want {
		t.Errorf("Path = %q, want %q", n.Path, want)
	}

	_, err = c.AddNode(NodeInput{ID: "2", Title: "No date"})
	if !errdefs.IsValidation(err) {
		t.Errorf("missing route params should fail validation, got %v", err)
	}
}

func TestStore_ChangeEvents(t *testing.T) {
	s, c := newPosts(t, CollectionOptions{Route: "/:slug"})
	var got []string
	s.OnChange().Tap("record", func(ch Change) error {
		old := ""
		if ch.Old != nil {
			old = ch.Old.Path
		}
		got = append(got, fmt.Sprintf("%s %s %s", ch.Kind, ch.Node.Path, old))
		return nil
	})

	v0 := s.Version()
	if _, err := c.AddNode(NodeInput{ID: "1", Title: "Hello"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UpdateNode(NodeInput{ID: "1", Title: "World"}); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveNode("1"); err != nil {
		t.Fatal(err)
	}
	want := []string{"add /hello ", "update /world /hello", "remove /world "}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %q, want %q", got, want)
	}
	if s.Version() <= v0 {
		t.Error("version did not advance")
	}
	if _, err := s.GetNodeByPath("/hello"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old path still resolves: %v", err)
	}
	if err := c.RemoveNode("1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove = %v, want ErrNotFound", err)
	}
}

func TestStore_HandlersMayMutate(t *testing.T) {
	s, c := newPosts(t, CollectionOptions{})
	logs, err := s.AddCollection("Log", CollectionOptions{})
	if err != nil {
		t.Fatal(err)
	}
	s.OnChange().Tap("audit", func(ch Change) error {
		if ch.TypeName != "Post" {
			return nil
		}
		_, err := logs.AddNode(NodeInput{ID: ch.Kind.String() + "-" + ch.Node.ID})
		return err
	})
	if _, err := c.AddNode(NodeInput{ID: "1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetNode("Log", "add-1"); err != nil {
		t.Errorf("handler write missing: %v", err)
	}
}

func loadPosts(t *testing.T, bulk bool) *Store {
	t.Helper()
	s := New(nil)
	c, err := s.AddCollection("Post", CollectionOptions{
		Route:       "/posts/:slug",
		Refs:        map[string]string{"author": "Author"},
		IndexFields: []string{"category"},
	})
	if err != nil {
		t.Fatal(err)
	}
	categories := []string{"news", "guides", "releases"}
	if bulk {
		s.DisableIndices()
	}
	for i := 0; i < 1000; i++ {
		_, err := c.AddNode(NodeInput{
			ID:    strconv.Itoa(i),
			Title: fmt.Sprintf("Post %d", i),
			Fields: map[string]any{
				"category": categories[i%len(categories)],
				"author":   strconv.Itoa(i % 7),
				"related":  []refs.Reference{refs.New("Post", strconv.Itoa((i+1)%1000))},
			},
		})
		if err != nil {
			t.Fatalf("AddNode %d: %v", i, err)
		}
	}
	if bulk {
		if _, err := s.IndexState(); !errors.Is(err, errdefs.ErrIndicesDisabled) {
			t.Errorf("IndexState while disabled = %v", err)
		}
		found, err := c.FindNodes(Query{"category": "guides"})
		if err != nil || len(found) != 333 {
			t.Errorf("scan fallback found %d nodes, err %v", len(found), err)
		}
		s.EnableIndices()
	}
	return s
}

func TestStore_BulkIndexEquivalence(t *testing.T) {
	continuous, err := loadPosts(t, false).IndexState()
	if err != nil {
		t.Fatal(err)
	}
	bulk, err := loadPosts(t, true).IndexState()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(continuous, bulk) {
		t.Error("index state after bulk load differs from continuous indexing")
	}
	if got := len(continuous.Members["Post"]); got != 1000 {
		t.Errorf("members = %d, want 1000", got)
	}
	if got := len(continuous.Fields["Post/category=news"]); got != 334 {
		t.Errorf("news bucket = %d, want 334", got)
	}
}

func TestStore_BelongsTo(t *testing.T) {
	s := New(nil)
	authors, _ := s.AddCollection("Author", CollectionOptions{})
	posts, _ := s.AddCollection("Post", CollectionOptions{Refs: map[string]string{"author": "Author"}})
	ada, err := authors.AddNode(NodeInput{ID: "1", Title: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	for i, author := range []string{"1", "2", "1"} {
		if _, err := posts.AddNode(NodeInput{ID: strconv.Itoa(i), Fields: map[string]any{"author": author}}); err != nil {
			t.Fatal(err)
		}
	}
	got := s.BelongsTo(ada.UID)
	if len(got) != 2 || got[0].ID != "0" || got[1].ID != "2" {
		t.Fatalf("BelongsTo = %v", got)
	}

	s.DisableIndices()
	scanned := s.BelongsTo(ada.UID)
	s.EnableIndices()
	if len(scanned) != 2 {
		t.Errorf("BelongsTo scan fallback = %d nodes, want 2", len(scanned))
	}
}

func TestCollection_AddReference(t *testing.T) {
	s, posts := newPosts(t, CollectionOptions{})
	p, err := posts.AddNode(NodeInput{ID: "1", Fields: map[string]any{"category": "news"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := posts.AddReference("category", "Category"); err != nil {
		t.Fatal(err)
	}
	if got := posts.Refs(); got["category"] != "Category" {
		t.Errorf("Refs = %v", got)
	}
	cats, ok := s.Collection("Category")
	if !ok {
		t.Fatal("AddReference should create the target collection")
	}
	news, err := cats.AddNode(NodeInput{ID: "news", Title: "News"})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.BelongsTo(news.UID); len(got) != 1 || got[0].UID != p.UID {
		t.Errorf("BelongsTo = %v", got)
	}
	if err := posts.AddReference("", "Category"); !errdefs.IsValidation(err) {
		t.Errorf("empty field = %v, want ValidationError", err)
	}
}

func TestStore_MetadataDeepMerge(t *testing.T) {
	s := New(nil)
	s.AddMetadata("site", map[string]any{"title": "A", "social": map[string]any{"tw": "x"}})
	s.AddMetadata("site", map[string]any{"social": map[string]any{"gh": "y"}})
	s.AddMetadata("count", 3)

	md := s.Metadata()
	want := map[string]any{
		"site":  map[string]any{"title": "A", "social": map[string]any{"tw": "x", "gh": "y"}},
		"count": 3,
	}
	if !reflect.DeepEqual(md, want) {
		t.Errorf("Metadata = %#v", md)
	}
}

func TestStore_CollectionsAreLazy(t *testing.T) {
	s := New(nil)
	ref := s.CreateReference("Tag", "go")
	if ref != refs.New("Tag", "go") {
		t.Errorf("ref = %+v", ref)
	}
	if _, ok := s.Collection("Tag"); !ok {
		t.Error("CreateReference should create the target collection")
	}
	if _, err := s.AddCollection("Tag", CollectionOptions{Route: "/tag/:id"}); err != nil {
		t.Fatalf("adding a route to a lazy collection: %v", err)
	}
	if _, err := s.AddCollection("Tag", CollectionOptions{Route: "/tags/:id"}); !errdefs.IsConfig(err) {
		t.Errorf("conflicting route = %v, want ConfigError", err)
	}
}

func TestCollection_SetRoute(t *testing.T) {
	s, c := newPosts(t, CollectionOptions{})
	for _, title := range []string{"One", "Two"} {
		if _, err := c.AddNode(NodeInput{ID: title, Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	updates := 0
	s.OnChange().Tap("count", func(ch Change) error {
		if ch.Kind == ChangeUpdate {
			updates++
		}
		return nil
	})
	if err := c.SetRoute("/p/:slug"); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.GetNode("Two"); n.Path != "/p/two" {
		t.Errorf("Path = %q", n.Path)
	}
	if updates != 2 {
		t.Errorf("updates = %d, want 2", updates)
	}

	if err := c.SetRoute("/p"); !errdefs.IsPathCollision(err) {
		t.Errorf("colliding route = %v", err)
	}
	if n, _ := c.GetNode("One"); n.Path != "/p/one" {
		t.Error("failed SetRoute changed paths")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":      "hello-world",
		"Hello WörldWide!": "hello-world-wide",
		"AboutUs":          "about-us",
		"  --trim--  ":     "trim",
		"post 42":          "post-42",
		"":                 "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":         "",
		"/":        "/",
		"a/b/":     "/a/b",
		"//a//b//": "/a/b",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
