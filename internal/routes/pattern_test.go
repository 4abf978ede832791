package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePatternStatic(t *testing.T) {
	p, err := CompilePattern("admin/")
	require.NoError(t, err)

	suffix, params, ok := p.Match("admin/panel/")
	assert.True(t, ok)
	assert.Equal(t, "panel/", suffix)
	assert.Empty(t, params)
	assert.Equal(t, "admin/", p.String())
}

func TestCompilePatternConverters(t *testing.T) {
	p, err := CompilePattern("blog/<int:year>/<str:slug>/")
	require.NoError(t, err)

	suffix, params, ok := p.Match("blog/2024/my-post/")
	require.True(t, ok)
	assert.Equal(t, "", suffix)
	assert.Equal(t, map[string]string{"year": "2024", "slug": "my-post"}, params)

	// int converter rejects non-digits
	_, _, ok = p.Match("blog/twentytwo/my-post/")
	assert.False(t, ok)

	// str converter never crosses a slash
	_, _, ok = p.Match("blog/2024//")
	assert.False(t, ok)
}

func TestCompilePatternBareNameImpliesStr(t *testing.T) {
	p, err := CompilePattern("docs/<section>/")
	require.NoError(t, err)

	_, params, ok := p.Match("docs/intro/")
	require.True(t, ok)
	assert.Equal(t, "intro", params["section"])
}

func TestCompilePatternUUIDConverter(t *testing.T) {
	p, err := CompilePattern("files/<uuid:id>/")
	require.NoError(t, err)

	_, params, ok := p.Match("files/0aae0d3a-6c0b-4f9b-8d0e-123456789abc/")
	require.True(t, ok)
	assert.Equal(t, "0aae0d3a-6c0b-4f9b-8d0e-123456789abc", params["id"])

	_, _, ok = p.Match("files/not-a-uuid/")
	assert.False(t, ok)
}

func TestCompilePatternPathConverter(t *testing.T) {
	p, err := CompilePattern("raw/<path:rest>")
	require.NoError(t, err)

	_, params, ok := p.Match("raw/a/b/c")
	require.True(t, ok)
	assert.Equal(t, "a/b/c", params["rest"])
}

func TestCompilePatternErrors(t *testing.T) {
	cases := []string{
		"blog/<int:year/",
		"blog/int:year>/",
		"blog/<bogus:year>/",
		"blog/<int:not a name>/",
	}
	for _, template := range cases {
		_, err := CompilePattern(template)
		assert.Error(t, err, "template %q should not compile", template)
	}
}

func TestPatternMatchReturnsSuffix(t *testing.T) {
	p := MustCompilePattern("admin")

	suffix, _, ok := p.Match("admin-panel/")
	require.True(t, ok)
	assert.Equal(t, "-panel/", suffix)

	suffix, _, ok = p.Match("admin/users")
	require.True(t, ok)
	assert.Equal(t, "/users", suffix)
}

func TestStaticPrefix(t *testing.T) {
	assert.Equal(t, "blog/", MustCompilePattern("blog/<int:year>/<str:slug>/").StaticPrefix())
	assert.Equal(t, "", MustCompilePattern("<str:visibility>/<str:post>/").StaticPrefix())
	assert.Equal(t, "admin/", MustCompilePattern("admin/").StaticPrefix())
}
