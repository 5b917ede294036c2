package mountarg

import "testing"

func TestParseBareAddress(t *testing.T) {
	s, err := Parse("127.0.0.1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.IP != "127.0.0.1" || s.URL != "/" {
		t.Errorf("got %+v", s)
	}
}

func TestParseWithPath(t *testing.T) {
	s, err := Parse("10.0.0.5:/export/data")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.IP != "10.0.0.5" || s.URL != "/export/data" {
		t.Errorf("got %+v", s)
	}
}

func TestParsePrependsSlash(t *testing.T) {
	s, err := Parse("10.0.0.5:export/data")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.URL != "/export/data" {
		t.Errorf("url = %q, want /export/data", s.URL)
	}
}

func TestParseRejectsBadAddress(t *testing.T) {
	cases := []string{
		"",
		"1.2.3",
		"1.2.3.4.5",
		"1..2.3",
		"1.2.3.",
		"abc.def.ghi.jkl",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) should have failed", c)
		}
	}
}

func TestValidateMountPoint(t *testing.T) {
	if err := ValidateMountPoint("/mnt/x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateMountPoint("relative/path"); err == nil {
		t.Errorf("expected error for relative mount point")
	}
}
