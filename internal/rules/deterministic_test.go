package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveRedundantAssertNotNullAfterNew(t *testing.T) {
	in := `public class Foo_ESTest {
  public void test01() throws Throwable {
    Foo f = new Foo();
    assertNotNull(f);
    f.run();
  }
}
`
	out, n := RemoveRedundantAssertNotNull(in)
	require.Equal(t, 1, n)
	require.NotContains(t, out, "assertNotNull(f);")
	require.Contains(t, out, "Foo f = new Foo();")
	require.Contains(t, out, "f.run();")
	require.True(t, strings.HasSuffix(out, "\n"), "trailing newline preserved")
}

func TestRemoveRedundantAssertNotNullSkipsBlankLines(t *testing.T) {
	in := "Foo f = new Foo();\n\n\nassertNotNull(f);"
	out, n := RemoveRedundantAssertNotNull(in)
	require.Equal(t, 1, n)
	require.Equal(t, "Foo f = new Foo();\n\n", out)
	require.False(t, strings.HasSuffix(in, "\n"))
}

func TestRemoveRedundantAssertNotNullOtherAssertionNearby(t *testing.T) {
	in := `Bar b = Bar.create();
assertNotNull(b);
assertEquals(1, b.size());
`
	out, n := RemoveRedundantAssertNotNull(in)
	require.Equal(t, 1, n)
	require.NotContains(t, out, "assertNotNull(b);")
	require.Contains(t, out, "assertEquals(1, b.size());")
}

func TestRemoveRedundantAssertNotNullPreservedWhenAlone(t *testing.T) {
	in := `Baz z = Baz.create();
assertNotNull(z);
z.run();
`
	out, n := RemoveRedundantAssertNotNull(in)
	require.Equal(t, 0, n)
	require.Equal(t, in, out)
}

func TestRemoveRedundantAssertNotNullWindowBoundary(t *testing.T) {
	build := func(gap int) string {
		var b strings.Builder
		b.WriteString("Qux q = Qux.create();\n")
		b.WriteString("assertNotNull(q);\n")
		for i := 0; i < gap; i++ {
			b.WriteString("q.step();\n")
		}
		b.WriteString("assertTrue(q.done());\n")
		return b.String()
	}

	// Other assertion on line offset 30 after the assert: inside the window.
	out, n := RemoveRedundantAssertNotNull(build(29))
	require.Equal(t, 1, n)
	require.NotContains(t, out, "assertNotNull(q);")

	// Offset 31: outside the window, assertion stays.
	out, n = RemoveRedundantAssertNotNull(build(30))
	require.Equal(t, 0, n)
	require.Contains(t, out, "assertNotNull(q);")
}

func TestRemoveRedundantAssertNotNullIgnoresCallExpressions(t *testing.T) {
	in := "assertNotNull(foo.name());\nassertEquals(1, foo.size());\n"
	out, n := RemoveRedundantAssertNotNull(in)
	require.Equal(t, 0, n, "only bare-variable assertNotNull calls qualify")
	require.Equal(t, in, out)
}

func TestRemoveRedundantAssertNotNullMultiple(t *testing.T) {
	in := `Foo a = new Foo();
assertNotNull(a);
Bar b = makeBar();
assertNotNull(b);
assertEquals(1, b.size());
`
	out, n := RemoveRedundantAssertNotNull(in)
	require.Equal(t, 2, n)
	require.NotContains(t, out, "assertNotNull")
}

const dsInput = `public class Foo_ESTest {

  @Test(timeout = 4000)
  public void test00() throws Throwable {
    Foo foo = new Foo();
    foo.init();
    foo.load("x");
    assertEquals(1, foo.count());
  }

  @Test(timeout = 4000)
  public void test01() throws Throwable {
    Foo foo = new Foo();
    foo.init();
    foo.load("x");
    int n = foo.count();
    assertEquals(1, n);
  }

  @Test(timeout = 4000)
  public void test02() throws Throwable {
    Foo foo = new Foo();
    assertNotNull(foo.name());
  }
}
`

func TestExtractDuplicatedSetupToBefore(t *testing.T) {
	out, changed := ExtractDuplicatedSetupToBefore(dsInput, []string{"test00", "test01"}, 2)
	require.True(t, changed)

	require.Equal(t, 1, strings.Count(out, "@org.junit.Before"))
	require.Contains(t, out, "  private Foo foo;")
	require.Contains(t, out, "  public void setUp() throws Exception {\n    foo = new Foo();\n    foo.init();\n    foo.load(\"x\");\n  }")

	// Neither target repeats the extracted prefix.
	require.Equal(t, 1, strings.Count(out, "foo.init();"))
	require.Equal(t, 1, strings.Count(out, `foo.load("x");`))

	// The setup method lands right after the class opening brace.
	require.Contains(t, out, "public class Foo_ESTest {\n  private Foo foo;\n\n  @org.junit.Before\n")

	// Non-target redeclarations of the promoted variable become assignments.
	require.Contains(t, out, "    foo = new Foo();\n    assertNotNull(foo.name());")
	require.NotContains(t, out, "Foo foo = new Foo();")

	// The per-method assertions survive.
	require.Contains(t, out, "assertEquals(1, foo.count());")
	require.Contains(t, out, "int n = foo.count();")
}

func TestExtractDuplicatedSetupNoOpWithExistingBefore(t *testing.T) {
	in := strings.Replace(dsInput, "public class Foo_ESTest {", "public class Foo_ESTest {\n  @Before public void init() {}", 1)
	out, changed := ExtractDuplicatedSetupToBefore(in, []string{"test00", "test01"}, 2)
	require.False(t, changed)
	require.Equal(t, in, out)
}

func TestExtractDuplicatedSetupNoOpWithSingleTarget(t *testing.T) {
	out, changed := ExtractDuplicatedSetupToBefore(dsInput, []string{"test00"}, 2)
	require.False(t, changed)
	require.Equal(t, dsInput, out)
}

func TestExtractDuplicatedSetupNoOpWithShortPrefix(t *testing.T) {
	in := `public class Foo_ESTest {
  public void test00() throws Throwable {
    Foo foo = new Foo();
    foo.alpha();
  }

  public void test01() throws Throwable {
    Foo foo = new Foo();
    foo.beta();
  }
}
`
	out, changed := ExtractDuplicatedSetupToBefore(in, []string{"test00", "test01"}, 2)
	require.False(t, changed)
	require.Equal(t, in, out)
}

func TestExtractDuplicatedSetupStopsAtAssertAndTry(t *testing.T) {
	in := `public class Foo_ESTest {
  public void test00() throws Throwable {
    try {
      Foo foo = new Foo();
      foo.init();
    } catch (Exception e) {
    }
  }

  public void test01() throws Throwable {
    try {
      Foo foo = new Foo();
      foo.init();
    } catch (Exception e) {
    }
  }
}
`
	out, changed := ExtractDuplicatedSetupToBefore(in, []string{"test00", "test01"}, 2)
	require.False(t, changed, "prefix starting with try never extracts")
	require.Equal(t, in, out)
}

func TestExtractDuplicatedSetupMixedStatementPrefix(t *testing.T) {
	in := `public class Foo_ESTest {
  public void test00() throws Throwable {
    Foo foo = new Foo();
    foo.configure(7);
    assertEquals(7, foo.level());
  }

  public void test01() throws Throwable {
    Foo foo = new Foo();
    foo.configure(7);
    assertTrue(foo.ready());
  }
}
`
	out, changed := ExtractDuplicatedSetupToBefore(in, []string{"test00", "test01"}, 2)
	require.True(t, changed)
	require.Contains(t, out, "  private Foo foo;")
	require.Contains(t, out, "    foo = new Foo();\n    foo.configure(7);\n  }")
	require.Equal(t, 1, strings.Count(out, "foo.configure(7);"))
}
