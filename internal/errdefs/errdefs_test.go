package errdefs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelpersUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("add node: %w", &PathCollisionError{Path: "/a", Existing: "Post:1", Conflicting: "Post:2"})
	assert.True(t, IsPathCollision(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Contains(t, wrapped.Error(), "Post:1")
	assert.Contains(t, wrapped.Error(), "Post:2")

	assert.True(t, IsValidation(fmt.Errorf("x: %w", NewValidation("createPage", "path", "is required"))))
	assert.True(t, IsConfig(NewConfig("Post", "duplicate type")))
	assert.True(t, IsQuery(&QueryError{Messages: []string{"boom"}}))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "createPage: path: is required", NewValidation("createPage", "path", "is required").Error())
	assert.Equal(t, "config: bad", (&ConfigError{Message: "bad"}).Error())
	assert.Equal(t, "query failed for /blog: a; b", (&QueryError{Path: "/blog", Messages: []string{"a", "b"}}).Error())
	assert.Equal(t, "dangling reference to Author:9", DanglingReference{TypeName: "Author", ID: "9"}.String())
}

func TestValidationWrapsCollision(t *testing.T) {
	err := &ValidationError{Label: "addNode", Err: &PathCollisionError{Path: "/a", Existing: "Post:1", Conflicting: "Post:2"}}
	assert.True(t, IsValidation(err))
	assert.True(t, IsPathCollision(err))
	assert.Equal(t, `addNode: path collision on "/a": Post:2 conflicts with Post:1`, err.Error())
}
