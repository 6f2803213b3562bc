package confusables

import "testing"

func TestTableLoads(t *testing.T) {
	if got := len(table()); got != 36 {
		t.Fatalf("table has %d entries, want 36", got)
	}
	if got := table()['а']; got != "a" {
		t.Fatalf("Cyrillic a maps to %q, want a", got)
	}
}

func TestParseTableSkipsMalformedLines(t *testing.T) {
	got := parseTable("# comment\n\nzzzz ;\t0061 ;\tMA\n0430 0431 ;\t0061 ;\tMA\n03BF ;\t006F ;\tMA\t# omicron\n")
	if len(got) != 1 || got['ο'] != "o" {
		t.Fatalf("parseTable = %q, want only omicron", got)
	}
}

func TestSkeleton(t *testing.T) {
	cases := map[string]string{
		"pаypal.com":  "paypal.com", // Cyrillic а
		"gοοgle.com":  "google.com", // Greek omicrons
		"example.com": "example.com",
		"":            "",
	}
	for in, want := range cases {
		if got := Skeleton(in); got != want {
			t.Errorf("Skeleton(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfusable(t *testing.T) {
	if !Confusable("pаypal.com", "paypal.com") {
		t.Error("Cyrillic homograph should be confusable with paypal.com")
	}
	if Confusable("paypal.com", "paypal.com") {
		t.Error("identical strings are not confusable")
	}
	if Confusable("paypa1.com", "paypal.com") {
		t.Error("digit substitution is left to edit distance")
	}
	if !ContainsHomoglyphs("аpple.com") || ContainsHomoglyphs("apple.com") {
		t.Error("ContainsHomoglyphs mismatch")
	}
}
