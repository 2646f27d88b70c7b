package urlx

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://en.wikipedia.org/wiki/Go", "https://en.wikipedia.org/wiki/Go"},
		{"http://example.com", "https://example.com/"},
		{"example.com", "https://example.com/"},
		{"  https://example.com/a/ ", "https://example.com/a"},
		{"https://example.com/a?b=1", "https://example.com/a"},
		{"https://example.com/a#frag", "https://example.com/a"},
		{"https://example.com/a/?b=1#frag", "https://example.com/a"},
		{"http://http://example.com", "https://example.com/"},
		{"https://http://example.com/x", "https://example.com/x"},
		{"https://example.com/", "https://example.com/"},
	}

	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"example.com/path/",
		"http://www.example.com/a?q=1#f",
		"https://en.wikipedia.org/wiki/Joe_Biden",
		"HTTPS://example.com", // scheme prefix strip is case-sensitive by design
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestSameDomain(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"https://example.com/a", "https://example.com/b", true},
		{"https://www.example.com/a", "https://example.com/b", true},
		{"https://docs.example.com/a", "https://example.com/b", true},
		{"https://example.com/a", "https://docs.example.com/b", true},
		{"https://example.com/a", "https://other.com/b", false},
		{"https://example.com/a", "https://badexample.com/b", false},
	}

	for _, c := range cases {
		if got := SameDomain(c.a, c.b); got != c.want {
			t.Errorf("SameDomain(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
