package markdown

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitParsesFrontMatter(t *testing.T) {
	src := "---\ntitle: \" Hello \"\ndate: 2024-03-01\ntags: [a, b]\n---\n\n# Body\n"
	fm, body, err := Split([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "Hello", fm.Title)
	assert.Equal(t, "2024-03-01", fm.Date)
	assert.Equal(t, []string{"a", "b"}, fm.Tags)
	assert.Equal(t, "# Body\n", body)
}

func TestSplitWithoutFrontMatter(t *testing.T) {
	fm, body, err := Split([]byte("just text"))
	require.NoError(t, err)
	assert.Empty(t, fm.Title)
	assert.Equal(t, "just text", body)
}

func TestSplitRejectsBrokenYAML(t *testing.T) {
	_, _, err := Split([]byte("---\ntitle: [unclosed\n---\nbody"))
	require.Error(t, err)
}

func TestToHTMLSanitizes(t *testing.T) {
	out, err := ToHTML("## Heading\n\n<script>alert(1)</script>\n\n[link](https://example.com)")
	require.NoError(t, err)
	assert.Contains(t, out, `<h2 id="heading">Heading</h2>`)
	assert.NotContains(t, out, "<script>")
	assert.True(t, strings.Contains(out, `rel="nofollow"`), out)
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ParseDate("2024-03-01"))
	assert.True(t, ParseDate("someday").IsZero())
}
