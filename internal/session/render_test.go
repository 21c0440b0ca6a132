package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultPlainText(t *testing.T) {
	r := &Result{
		Columns: []string{"id", "name"},
		Rows:    [][]string{{"1", "apple"}, {"2", "kiwi"}},
	}

	assert.Equal(t, "id  name\n1   apple\n2   kiwi", r.PlainText())
}

func TestResultHTMLEscapes(t *testing.T) {
	r := &Result{
		Columns: []string{"expr"},
		Rows:    [][]string{{"<b>&</b>"}},
	}

	html := r.HTML()
	assert.Contains(t, html, "<th>expr</th>")
	assert.Contains(t, html, "<td>&lt;b&gt;&amp;&lt;/b&gt;</td>")
}
