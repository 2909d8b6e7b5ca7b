package urlx

import "testing"

func TestParseBasic(t *testing.T) {
	u, err := Parse("http://example/abc?q=1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "http" || u.Host != "example" || u.Port != 80 || u.Path != "/abc" || u.Query != "q=1" {
		t.Fatalf("unexpected parse result: %+v", u)
	}
	if got, want := u.String(), "http://example/abc?q=1"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestParseDefaults(t *testing.T) {
	u, err := Parse("https://host.example")
	if err != nil {
		t.Fatal(err)
	}
	if u.Port != 443 || u.Path != "/" || u.Query != "" {
		t.Fatalf("unexpected defaults: %+v", u)
	}
}

func TestParseExplicitPort(t *testing.T) {
	u, err := Parse("http://host:8080/x")
	if err != nil {
		t.Fatal(err)
	}
	if u.Port != 8080 || u.Path != "/x" {
		t.Fatalf("unexpected result: %+v", u)
	}
}

func TestParseNoSchemeFails(t *testing.T) {
	if _, err := Parse("example.com/path"); err == nil {
		t.Fatal("expected error for missing scheme separator")
	}
}

func TestParseSchemeLowercased(t *testing.T) {
	u, err := Parse("HTTP://Example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme not lowercased: %q", u.Scheme)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"http://example/abc?q=1",
		"https://example.com/",
		"http://example.com:8080/a/b?x=y",
		"https://example.com:443/path",
	}
	for _, s := range cases {
		u, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		u2, err := Parse(u.String())
		if err != nil {
			t.Fatalf("Parse(String()) failed: %v", err)
		}
		if *u != *u2 {
			t.Fatalf("round trip mismatch: %+v != %+v", u, u2)
		}
	}
}

func TestQueryWithoutPath(t *testing.T) {
	u, err := Parse("http://example?q=1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/" || u.Query != "q=1" {
		t.Fatalf("unexpected: %+v", u)
	}
}
