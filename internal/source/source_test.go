package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSearchPage = `
<html><body>
<table class="c">
<tr><td>ID</td><td>Author</td><td>Title</td><td>Publisher</td><td>Year</td><td>Pages</td><td>Language</td><td>Size</td><td>Ext</td></tr>
<tr>
  <td>1441792</td>
  <td>Brandon Sanderson</td>
  <td><a href="book/index.php?md5=AABBCCDDEEFF00112233445566778899">Warbreaker<i>9780765360038</i></a></td>
  <td>Tor Books</td>
  <td>2009</td>
  <td>688</td>
  <td>English</td>
  <td>1168 Kb</td>
  <td>epub</td>
</tr>
<tr>
  <td>1441793</td>
  <td>-</td>
  <td><a href="/md5/99887766554433221100FFEEDDCCBBAA">Untitled scan</a></td>
  <td></td>
  <td></td>
  <td></td>
  <td></td>
  <td>2 Mb</td>
  <td>pdf</td>
</tr>
</table>
</body></html>`

func TestParseSearchRows(t *testing.T) {
	records, err := ParseSearchRows([]byte(sampleSearchPage))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0].SearchRow
	require.NotNil(t, first)
	assert.Equal(t, "1441792", first.ID)
	assert.Equal(t, "Brandon Sanderson", first.Author)
	assert.Equal(t, "Warbreaker", first.Title)
	assert.Equal(t, "9780765360038", first.Identifier)
	assert.Equal(t, "aabbccddeeff00112233445566778899", first.MD5)
	assert.Equal(t, "epub", first.Extension)
	assert.Equal(t, "1168 Kb", first.SizeText)

	second := records[1].SearchRow
	require.NotNil(t, second)
	assert.Equal(t, "99887766554433221100ffeeddccbbaa", second.MD5)
}

func TestSearchRowNormalize(t *testing.T) {
	records, err := ParseSearchRows([]byte(sampleSearchPage))
	require.NoError(t, err)

	file, ok := records[0].Normalize("http://mirror.example", "libmirror")
	require.True(t, ok)
	assert.Equal(t, "Warbreaker", file.Title)
	assert.Equal(t, "Brandon Sanderson", file.Author)
	assert.Equal(t, int64(1168*1024), file.Filesize)
	assert.Equal(t, "http://mirror.example", file.Mirror)
	assert.Equal(t, "libmirror", file.Source)

	// Second row has a sentinel author and must be dropped.
	_, ok = records[1].Normalize("http://mirror.example", "libmirror")
	assert.False(t, ok)
}

func TestParseAPIBooks(t *testing.T) {
	payload := []byte(`[
		{"id":"1","title":"Warbreaker","author":"Brandon Sanderson","year":"2009",
		 "language":"English","extension":"epub","filesize":"734833",
		 "md5":"AABBCCDDEEFF00112233445566778899","identifier":"9780765360038"},
		{"id":"2","title":"N/A","author":"","extension":"pdf","filesize":"100"}
	]`)

	records, err := ParseAPIBooks(payload)
	require.NoError(t, err)
	require.Len(t, records, 2)

	file, ok := records[0].Normalize("http://mirror.example", "libmirror")
	require.True(t, ok)
	assert.Equal(t, "aabbccddeeff00112233445566778899", file.MD5)
	assert.Equal(t, int64(734833), file.Filesize)

	_, ok = records[1].Normalize("http://mirror.example", "libmirror")
	assert.False(t, ok)
}

func TestParseAPIBooks_WrappedPayload(t *testing.T) {
	payload := []byte(`{"results":[{"id":"9","title":"Dune","author":"Frank Herbert","extension":"epub"}]}`)

	records, err := ParseAPIBooks(payload)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Dune", records[0].APIBook.Title)
}

func TestParseHumanSize(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"1168 Kb", 1168 * 1024},
		{"2 Mb", 2 * 1024 * 1024},
		{"1.5 Gb", int64(1.5 * float64(1<<30))},
		{"734833", 734833},
		{"", 0},
		{"huge", 0},
	}

	for _, tt := range tests {
		if got := parseHumanSize(tt.text); got != tt.want {
			t.Errorf("parseHumanSize(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
