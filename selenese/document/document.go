// Package document loads Selenese test cases and suites from HTML tables.
package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ethereum-optimism/infra/op-selenese/selenese"
)

var ErrNoTable = errors.New("document has no table")

// Error locates a problem in a test document.
type Error struct {
	Path string
	Row  int // 1-based table row, 0 for the whole document
	Err  error
}

func (e *Error) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: row %d: %v", e.Path, e.Row, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Name derives a test name from a document path, e.g. "login" for
// "cases/login.html".
func Name(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".html")
}

// LoadTestCase reads the test case document at path.
func LoadTestCase(path string) (*selenese.TestCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	defer f.Close()
	return ParseTestCase(path, f)
}

// ParseTestCase reads a test case from the first table in r. Every row after
// the first is a command: its first cell names the action and the following cells are
// the arguments. Trailing empty cells beyond the action's arity are ignored.
func ParseTestCase(path string, r io.Reader) (*selenese.TestCase, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, &Error{Path: path, Err: ErrNoTable}
	}

	tc := &selenese.TestCase{Name: Name(path)}
	var rowErr error
	table.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true
		}
		cells := row.Find("td")
		if cells.Length() == 0 {
			return true
		}
		var values []string
		cells.Each(func(_ int, cell *goquery.Selection) {
			values = append(values, cell.Text())
		})
		cmd, err := newCommand(strings.TrimSpace(values[0]), values[1:])
		if err != nil {
			rowErr = &Error{Path: path, Row: i + 1, Err: err}
			return false
		}
		tc.Commands = append(tc.Commands, cmd)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return tc, nil
}

func newCommand(name string, args []string) (*selenese.Command, error) {
	action, err := selenese.LookupAction(name)
	if err != nil {
		return nil, err
	}
	for len(args) > action.ArgumentCount && args[len(args)-1] == "" {
		args = args[:len(args)-1]
	}
	return selenese.NewActionCommand(action, args...)
}

// LoadTestSuite reads the suite document at path and every test case it
// links to. Links are resolved relative to the suite's directory and the
// link text names the test case.
func LoadTestSuite(path string) (*selenese.TestSuite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, &Error{Path: path, Err: ErrNoTable}
	}

	suite := &selenese.TestSuite{Name: Name(path)}
	dir := filepath.Dir(path)
	var loadErr error
	table.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true
		}
		link := row.Find("td").First().Find("a[href]").First()
		if link.Length() == 0 {
			return true
		}
		href, _ := link.Attr("href")
		tc, err := LoadTestCase(filepath.Join(dir, filepath.FromSlash(href)))
		if err != nil {
			loadErr = &Error{Path: path, Row: i + 1, Err: err}
			return false
		}
		if label := strings.TrimSpace(link.Text()); label != "" {
			tc.Name = label
		}
		suite.Cases = append(suite.Cases, tc)
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return suite, nil
}
