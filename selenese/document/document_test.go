package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-selenese/selenese"
)

const loginCase = `<?xml version="1.0" encoding="UTF-8"?>
<html>
<head><title>login</title></head>
<body>
<table cellpadding="1" cellspacing="1" border="1">
<thead>
<tr><td rowspan="1" colspan="3">login</td></tr>
</thead><tbody>
<tr><td>open</td><td>/login</td><td></td></tr>
<tr><td>type</td><td>id=user</td><td>bob</td></tr>
<tr><td>click</td><td>id=submit</td><td></td></tr>
<tr><td>assertLocation</td><td>exact:/dashboard</td><td></td></tr>
</tbody></table>
</body>
</html>`

const smokeSuite = `<html>
<body>
<table id="suiteTable" cellpadding="1" cellspacing="1" border="1"><tbody>
<tr><td><b>Test Suite</b></td></tr>
<tr><td><a href="cases/login.html">Log in</a></td></tr>
<tr><td><a href="cases/logout.html"></a></td></tr>
</tbody></table>
</body>
</html>`

const logoutCase = `<html><body><table>
<tr><td>logout</td></tr>
<tr><td>click</td><td>link=Log out</td><td></td></tr>
</table></body></html>`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTestCase(t *testing.T) {
	path := write(t, t.TempDir(), "login.html", loginCase)

	tc, err := LoadTestCase(path)
	require.NoError(t, err)
	assert.Equal(t, "login", tc.Name)

	var rendered []string
	for _, cmd := range tc.Commands {
		rendered = append(rendered, cmd.String())
	}
	assert.Equal(t, []string{
		"open(/login)",
		"type(id=user, bob)",
		"click(id=submit)",
		"assertLocation(exact:/dashboard)",
	}, rendered)
}

func TestParseTestCaseErrors(t *testing.T) {
	tests := []struct {
		name string
		html string
		row  int
		want any
	}{
		{
			name: "unknown action",
			html: `<table><tr><td>t</td></tr><tr><td>open</td><td>/</td></tr><tr><td>frobnicate</td><td>x</td></tr></table>`,
			row:  3,
			want: &selenese.UnknownActionError{},
		},
		{
			name: "too many arguments",
			html: `<table><tr><td>t</td></tr><tr><td>click</td><td>id=a</td><td>extra</td></tr></table>`,
			row:  2,
			want: &selenese.InvalidCommandError{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTestCase("broken.html", strings.NewReader(tt.html))
			require.Error(t, err)
			var docErr *Error
			require.ErrorAs(t, err, &docErr)
			assert.Equal(t, "broken.html", docErr.Path)
			assert.Equal(t, tt.row, docErr.Row)
			switch want := tt.want.(type) {
			case *selenese.UnknownActionError:
				assert.ErrorAs(t, err, &want)
			case *selenese.InvalidCommandError:
				assert.ErrorAs(t, err, &want)
			}
		})
	}
}

func TestParseTestCaseSkipsRowsWithoutCells(t *testing.T) {
	tc, err := ParseTestCase("x.html", strings.NewReader(
		`<table><tr><th>title</th></tr><tr><th>ignored</th></tr><tr><td>echo</td><td>hi</td></tr></table>`))
	require.NoError(t, err)
	require.Len(t, tc.Commands, 1)
	assert.Equal(t, "echo(hi)", tc.Commands[0].String())
}

func TestParseTestCaseReadsFirstTableOnly(t *testing.T) {
	tc, err := ParseTestCase("x.html", strings.NewReader(
		`<table><tr><td>t</td></tr><tr><td>echo</td><td>first</td></tr></table>
<table><tr><td>notes</td></tr><tr><td>frobnicate</td><td>x</td></tr></table>`))
	require.NoError(t, err)
	require.Len(t, tc.Commands, 1)
	assert.Equal(t, "echo(first)", tc.Commands[0].String())
}

func TestParseTestCaseWithoutTable(t *testing.T) {
	_, err := ParseTestCase("empty.html", strings.NewReader("<html><body><p>nothing</p></body></html>"))
	require.ErrorIs(t, err, ErrNoTable)
	var docErr *Error
	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, 0, docErr.Row)
}

func TestLoadTestSuite(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "cases/login.html", loginCase)
	write(t, dir, "cases/logout.html", logoutCase)
	path := write(t, dir, "smoke.html", smokeSuite)

	suite, err := LoadTestSuite(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke", suite.Name)
	require.Len(t, suite.Cases, 2)
	assert.Equal(t, "Log in", suite.Cases[0].Name)
	assert.Len(t, suite.Cases[0].Commands, 4)
	assert.Equal(t, "logout", suite.Cases[1].Name, "empty link text keeps the file name")
	assert.Equal(t, "click(link=Log out)", suite.Cases[1].Commands[0].String())
}

func TestLoadTestSuiteMissingCase(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "smoke.html", smokeSuite)

	_, err := LoadTestSuite(path)
	require.Error(t, err)
	var docErr *Error
	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, 2, docErr.Row)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadTestSuiteWithoutTable(t *testing.T) {
	path := write(t, t.TempDir(), "empty.html", "<html><body><p>nothing</p></body></html>")
	_, err := LoadTestSuite(path)
	require.ErrorIs(t, err, ErrNoTable)
}

func TestName(t *testing.T) {
	assert.Equal(t, "login", Name("cases/login.html"))
	assert.Equal(t, "notes.txt", Name("notes.txt"))
}
