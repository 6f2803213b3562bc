package analyzer_test

import (
	"encoding/json"
	"testing"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
)

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"paypal.com", "paypal.com", 0},
		{"paypa1.com", "paypal.com", 1},
		{"café", "cafe", 1},
		{"apypa1.com", "paypa1.com", 2},
	}
	for _, tc := range cases {
		if got := analyzer.Levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if got, back := analyzer.Levenshtein(tc.a, tc.b), analyzer.Levenshtein(tc.b, tc.a); got != back {
			t.Errorf("Levenshtein not symmetric for %q/%q: %d vs %d", tc.a, tc.b, got, back)
		}
	}
}

func TestFindSimilarDomainsTyposquat(t *testing.T) {
	known := analyzer.NewKnownDomainSet(analyzer.DomainGroup{Name: "banks", Domains: []string{"paypal.com"}})

	hits := analyzer.FindSimilarDomains("paypa1.com", known, 2)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d: %+v", len(hits), hits)
	}
	want := analyzer.SimilarityHit{Domain: "paypal.com", EditDistance: 1, Group: "banks"}
	if hits[0] != want {
		t.Fatalf("hit = %+v, want %+v", hits[0], want)
	}

	none := analyzer.FindSimilarDomains("totallyunrelated.org", known, 2)
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", none)
	}
}

func TestFindSimilarDomainsEmptyCandidate(t *testing.T) {
	known := analyzer.NewKnownDomainSet(analyzer.DomainGroup{Name: "x", Domains: []string{"ab"}})
	if hits := analyzer.FindSimilarDomains("", known, 3); len(hits) != 0 {
		t.Fatalf("expected no hits for empty domain, got %+v", hits)
	}
}

func TestFindSimilarDomainsNormalizes(t *testing.T) {
	known := analyzer.NewKnownDomainSet(analyzer.DomainGroup{Name: "banks", Domains: []string{"www.PayPal.com", "", "  "}})

	hits := analyzer.FindSimilarDomains("www.paypal.com", known, 0)
	if len(hits) != 1 || hits[0].Domain != "paypal.com" || hits[0].EditDistance != 0 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestFindSimilarDomainsOrderingAndDuplicates(t *testing.T) {
	known := analyzer.NewKnownDomainSet(
		analyzer.DomainGroup{Name: "misc", Domains: []string{"apypa1.com"}},
		analyzer.DomainGroup{Name: "banks", Domains: []string{"paypal.com", "paypai.com"}},
		analyzer.DomainGroup{Name: "pay", Domains: []string{"paypal.com"}},
	)

	hits := analyzer.FindSimilarDomains("paypa1.com", known, analyzer.DefaultSimilarityThreshold)
	want := []analyzer.SimilarityHit{
		{Domain: "paypal.com", EditDistance: 1, Group: "banks"},
		{Domain: "paypai.com", EditDistance: 1, Group: "banks"},
		{Domain: "paypal.com", EditDistance: 1, Group: "pay"},
		{Domain: "apypa1.com", EditDistance: 2, Group: "misc"},
	}
	if len(hits) != len(want) {
		t.Fatalf("got %d hits, want %d: %+v", len(hits), len(want), hits)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Errorf("hit[%d] = %+v, want %+v", i, hits[i], want[i])
		}
	}
}

func TestKnownDomainSetDecodeSkipsMalformed(t *testing.T) {
	raw := `{"social": ["facebook.com", 42, "www.Twitter.com", null], "bad": "nope", "banks": ["paypal.com"], "empty": {}}`

	var set analyzer.KnownDomainSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if len(set.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %+v", set.Groups)
	}
	if set.Groups[0].Name != "social" || set.Groups[1].Name != "banks" {
		t.Fatalf("group order not preserved: %+v", set.Groups)
	}
	if got := set.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	encoded, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	const wantJSON = `{"social":["facebook.com","www.Twitter.com"],"banks":["paypal.com"]}`
	if string(encoded) != wantJSON {
		t.Fatalf("Marshal = %s, want %s", encoded, wantJSON)
	}
}

func TestKnownDomainSetDecodeRejectsNonObject(t *testing.T) {
	var set analyzer.KnownDomainSet
	if err := json.Unmarshal([]byte(`["paypal.com"]`), &set); err == nil {
		t.Fatal("expected error for array document")
	}
	if err := json.Unmarshal([]byte(`null`), &set); err != nil {
		t.Fatalf("null document should decode to empty set: %v", err)
	}
	if set.Len() != 0 {
		t.Fatalf("expected empty set, got %+v", set)
	}
}
