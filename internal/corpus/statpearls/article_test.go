package statpearls

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleArticle = `<?xml version="1.0" encoding="UTF-8"?>
<book-part-wrapper id="article-100" xmlns:xlink="http://www.w3.org/1999/xlink">
  <book-meta>
    <permissions>
      <copyright-statement>Copyright © 2023, StatPearls Publishing LLC.</copyright-statement>
      <license xlink:href="https://creativecommons.org/licenses/by-nc-nd/4.0/"/>
    </permissions>
  </book-meta>
  <book-part book-part-type="chapter" id="ch1">
    <book-part-meta>
      <title-group><title>Anemia</title></title-group>
    </book-part-meta>
    <body>
      <sec id="s1">
        <title>Introduction</title>
        <p>Anemia is <bold>common</bold> worldwide.</p>
        <p>See also <xref rid="r1">reference</xref> for details.</p>
      </sec>
      <sec id="s2">
        <title>History and Physical</title>
        <p>Fatigue is typical.</p>
        <list>
          <list-item><p>Pallor</p></list-item>
          <list-item><p>Tachycardia</p></list-item>
        </list>
      </sec>
    </body>
  </book-part>
</book-part-wrapper>`

func TestDecodeArticle(t *testing.T) {
	art, err := decodeArticle(strings.NewReader(sampleArticle))
	require.NoError(t, err)
	require.NotNil(t, art)

	assert.Equal(t, "article-100", art.ID)
	assert.Equal(t, "Anemia", art.Title)
	assert.Equal(t, "Copyright © 2023, StatPearls Publishing LLC.", art.Copyright)
	assert.Equal(t, licenseCCByNcNd4, art.License)

	require.Len(t, art.Sections, 2)

	intro := art.Sections[0]
	assert.Equal(t, "s1", intro.ID)
	assert.Equal(t, "Introduction", intro.Title)
	assert.Contains(t, intro.Contents, "Anemia is **common** worldwide.")
	// Cross references are dropped.
	assert.NotContains(t, intro.Contents, "reference")

	hp := art.Sections[1]
	assert.Equal(t, "s2", hp.ID)
	assert.Equal(t, "History and Physical", hp.Title)
	assert.Contains(t, hp.Contents, "Fatigue is typical.")
	assert.Contains(t, hp.Contents, "- Pallor")
	assert.Contains(t, hp.Contents, "- Tachycardia")
}

func TestDecodeArticle_Rejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "wrong root element",
			doc:  `<article id="a1"><body/></article>`,
		},
		{
			name: "missing article id",
			doc:  `<book-part-wrapper><book-meta/></book-part-wrapper>`,
		},
		{
			name: "missing copyright",
			doc: `<book-part-wrapper id="a1" xmlns:xlink="http://www.w3.org/1999/xlink">
				<book-meta><permissions>
					<license xlink:href="https://creativecommons.org/licenses/by-nc-nd/4.0/"/>
				</permissions></book-meta>
			</book-part-wrapper>`,
		},
		{
			name: "wrong license",
			doc: `<book-part-wrapper id="a1" xmlns:xlink="http://www.w3.org/1999/xlink">
				<book-meta><permissions>
					<copyright-statement>c</copyright-statement>
					<license xlink:href="https://creativecommons.org/licenses/by/4.0/"/>
				</permissions></book-meta>
			</book-part-wrapper>`,
		},
		{
			name: "no chapter book-part",
			doc: `<book-part-wrapper id="a1" xmlns:xlink="http://www.w3.org/1999/xlink">
				<book-meta><permissions>
					<copyright-statement>c</copyright-statement>
					<license xlink:href="https://creativecommons.org/licenses/by-nc-nd/4.0/"/>
				</permissions></book-meta>
				<book-part book-part-type="front-matter"><body/></book-part>
			</book-part-wrapper>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := decodeArticle(strings.NewReader(tt.doc))
			require.NoError(t, err)
			assert.Nil(t, art)
		})
	}
}

func TestDecodeArticle_MalformedXML(t *testing.T) {
	_, err := decodeArticle(strings.NewReader("<book-part-wrapper id=\"a1\"><unclosed>"))
	assert.Error(t, err)
}

func TestDecodeArticle_DroppedSections(t *testing.T) {
	doc := `<book-part-wrapper id="a1" xmlns:xlink="http://www.w3.org/1999/xlink">
		<book-meta><permissions>
			<copyright-statement>c</copyright-statement>
			<license xlink:href="https://creativecommons.org/licenses/by-nc-nd/4.0/"/>
		</permissions></book-meta>
		<book-part book-part-type="chapter">
			<book-part-meta><title-group><title>T</title></title-group></book-part-meta>
			<body>
				<sec><title>No id</title><p>text</p></sec>
				<sec id="s2"><p>no title</p></sec>
				<sec id="s3"><title>Empty</title></sec>
				<sec id="s4"><title>Kept</title><p>content</p></sec>
			</body>
		</book-part>
	</book-part-wrapper>`

	art, err := decodeArticle(strings.NewReader(doc))
	require.NoError(t, err)
	require.NotNil(t, art)
	require.Len(t, art.Sections, 1)
	assert.Equal(t, "s4", art.Sections[0].ID)
}
