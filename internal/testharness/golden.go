// Package testharness holds shared test helpers. Its main export is a
// golden-file helper used to pin rendered text surfaces, most notably
// the chat system prompt, to exact bytes.
package testharness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// UpdateGolden rewrites golden files instead of comparing against them.
// Set UPDATE_GOLDEN=1 and re-run the tests after an intentional change.
var UpdateGolden = os.Getenv("UPDATE_GOLDEN") == "1"

// Golden compares test output against files stored under a testdata
// directory, one file per assertion, named after the test.
type Golden struct {
	t    *testing.T
	dir  string
	name string
}

// NewGolden returns a helper rooted at testdata/golden next to the
// calling test.
func NewGolden(t *testing.T) *Golden {
	t.Helper()
	return NewGoldenAt(t, filepath.Join("testdata", "golden"))
}

// NewGoldenAt returns a helper rooted at dir, creating it if needed.
func NewGoldenAt(t *testing.T, dir string) *Golden {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create golden dir: %v", err)
	}
	return &Golden{t: t, dir: dir, name: sanitizeTestName(t.Name())}
}

// Assert compares actual against the test's golden file, or rewrites
// the file when UpdateGolden is set.
func (g *Golden) Assert(actual string) {
	g.t.Helper()
	g.assert(g.path(""), actual)
}

// AssertNamed is Assert with a filename suffix, for tests that pin
// more than one output.
func (g *Golden) AssertNamed(name, actual string) {
	g.t.Helper()
	g.assert(g.path(name), actual)
}

func (g *Golden) assert(filename, actual string) {
	g.t.Helper()

	if UpdateGolden {
		if err := os.WriteFile(filename, []byte(actual), 0o644); err != nil {
			g.t.Fatalf("update golden file %s: %v", filename, err)
		}
		g.t.Logf("updated golden file %s", filename)
		return
	}

	expected, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			g.t.Fatalf("golden file %s does not exist; run with UPDATE_GOLDEN=1 to create it\n\nactual output:\n%s", filename, actual)
		}
		g.t.Fatalf("read golden file %s: %v", filename, err)
	}

	if string(expected) != actual {
		g.t.Errorf("output does not match %s\n%s", filename, diff(string(expected), actual))
	}
}

func (g *Golden) path(name string) string {
	if name != "" {
		name = "_" + name
	}
	return filepath.Join(g.dir, g.name+name+".golden")
}

// sanitizeTestName makes a subtest name usable as a filename.
func sanitizeTestName(name string) string {
	return strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(name)
}

// diff renders mismatched lines as -expected/+actual pairs.
func diff(expected, actual string) string {
	want := strings.Split(expected, "\n")
	got := strings.Split(actual, "\n")

	n := len(want)
	if len(got) > n {
		n = len(got)
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		var w, a string
		if i < len(want) {
			w = want[i]
		}
		if i < len(got) {
			a = got[i]
		}
		if w != a {
			fmt.Fprintf(&b, "- %s\n+ %s\n", w, a)
		}
	}
	return b.String()
}
