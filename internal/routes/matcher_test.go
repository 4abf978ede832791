package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchUnregisteredPath(t *testing.T) {
	reg := NewRegistry()
	reg.Register("", MustCompilePattern("protected/"), nil)

	_, ok := reg.Match("/public/")
	assert.False(t, ok)
}

func TestMatchStaticWithoutTrailingSlash(t *testing.T) {
	reg := NewRegistry()
	reg.Register("", MustCompilePattern("admin"), nil)

	// exact match
	path, ok := reg.Match("/admin")
	require.True(t, ok)
	assert.Equal(t, "admin", path)

	// subpath is covered
	_, ok = reg.Match("/admin/users/")
	assert.True(t, ok)

	// no separator boundary: a different route entirely
	_, ok = reg.Match("/admin-panel/")
	assert.False(t, ok)
}

func TestMatchTrailingSlashCoversSubpaths(t *testing.T) {
	reg := NewRegistry()
	reg.Register("", MustCompilePattern("admin/"), nil)

	_, ok := reg.Match("/admin/")
	assert.True(t, ok)
	_, ok = reg.Match("/admin/panel/deep/")
	assert.True(t, ok)
}

func TestMatchDynamicPattern(t *testing.T) {
	reg := NewRegistry()
	reg.Register("", MustCompilePattern("blog/<int:year>/<str:slug>/"), nil)

	path, ok := reg.Match("/blog/2024/my-post/")
	require.True(t, ok)
	assert.Equal(t, "blog/<int:year>/<str:slug>/", path)

	_, ok = reg.Match("/blog-archive/2024/my-post/")
	assert.False(t, ok)
}

func TestMatchStripsPrefix(t *testing.T) {
	reg := NewRegistry()
	reg.Register("app/", MustCompilePattern("reports/"), nil)

	path, ok := reg.Match("/app/reports/q3/")
	require.True(t, ok)
	assert.Equal(t, "app/reports/", path)

	_, ok = reg.Match("/reports/q3/")
	assert.False(t, ok)
}

func TestMatchPredicateSkipsPublicVariant(t *testing.T) {
	reg := NewRegistry()
	reg.Register("", MustCompilePattern("<str:visibility>/<str:post>/"), func(params map[string]string) bool {
		return params["visibility"] == "private"
	})

	_, ok := reg.Match("/public/x/")
	assert.False(t, ok)

	path, ok := reg.Match("/private/x/")
	require.True(t, ok)
	assert.Equal(t, "<str:visibility>/<str:post>/", path)
}

func TestMatchPredicatePanicFailsSafe(t *testing.T) {
	reg := NewRegistry()
	reg.Register("", MustCompilePattern("docs/<str:section>/"), func(params map[string]string) bool {
		panic("boom")
	})

	// A breaking predicate must not expose the route.
	_, ok := reg.Match("/docs/internal/")
	assert.True(t, ok)
}
