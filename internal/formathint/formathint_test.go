package formathint

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, text string
		want          bool
	}{
		{"*gcc*", "gcc -o foo foo.c", true},
		{"*gcc*", "/usr/bin/gcc main.c", true},
		{"cargo *", "cargo build", true},
		{"cargo *", "cargo test --release", true},
		{"cargo *", "rustc main.rs", false},
		{"*", "anything", true},
		{"exact", "exact", true},
		{"exact", "not exact", false},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.text); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.text, got, c.want)
		}
	}
}

func TestDetectPriorityOrdering(t *testing.T) {
	s := New()
	s.Add("*build*", "generic", DefaultPriority)
	s.Add("mycompany-build*", "gcc", 1000)

	if got := s.Detect("mycompany-build main.c"); got != "gcc" {
		t.Fatalf("Detect = %q, want gcc (higher priority should win)", got)
	}
	if got := s.Detect("npm run build"); got != "generic" {
		t.Fatalf("Detect = %q, want generic", got)
	}
}

func TestDetectFallsBackToDefault(t *testing.T) {
	s := New()
	s.Add("*lint*", "eslint", DefaultPriority)
	if got := s.Detect("cargo test"); got != "auto" {
		t.Fatalf("Detect = %q, want auto (no match)", got)
	}
}

func TestParseSimpleAndStructuredForms(t *testing.T) {
	doc := []byte(`
[format-hints]
"*lint*" = "eslint"
"*pytest*" = { format = "pytest", priority = 100 }

[format-hints.1000]
"mycompany-*" = "gcc"
`)
	s, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(s.Hints()) != 3 {
		t.Fatalf("got %d hints, want 3", len(s.Hints()))
	}
	if got := s.Detect("mycompany-build"); got != "gcc" {
		t.Fatalf("Detect = %q, want gcc", got)
	}
	if got := s.Detect("npm run lint"); got != "eslint" {
		t.Fatalf("Detect = %q, want eslint", got)
	}
	if got := s.Detect("pytest -v"); got != "pytest" {
		t.Fatalf("Detect = %q, want pytest", got)
	}
}

func TestAddRemove(t *testing.T) {
	s := New()
	s.Add("*test*", "pytest", DefaultPriority)
	if len(s.Hints()) != 1 {
		t.Fatalf("got %d hints, want 1", len(s.Hints()))
	}
	if !s.Remove("*test*") {
		t.Fatal("Remove should report true for an existing pattern")
	}
	if s.Remove("*nonexistent*") {
		t.Fatal("Remove should report false for a missing pattern")
	}
}
