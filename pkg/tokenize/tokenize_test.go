package tokenize

import "testing"

func TestUnigramsStripsPunctuationAndStopwords(t *testing.T) {
	toks := Unigrams("Use React hooks for the state!")
	words := Words(toks)
	want := []string{"use", "react", "hooks", "state"}
	if len(words) != len(want) {
		t.Fatalf("got %v, want %v", words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, words[i], want[i])
		}
	}
}

func TestDropsShortAndLongTokens(t *testing.T) {
	longWord := ""
	for i := 0; i < 60; i++ {
		longWord += "x"
	}
	toks := Unigrams("a bb " + longWord + " cat")
	words := Words(toks)
	if len(words) != 2 || words[0] != "bb" || words[1] != "cat" {
		t.Errorf("got %v, want [bb cat]", words)
	}
}

func TestBigramsOnlyJoinAdjacentSurvivors(t *testing.T) {
	uni := Unigrams("React is the best framework")
	bi := Bigrams(uni)
	want := []string{"react best", "best framework"}
	if len(bi) != len(want) {
		t.Fatalf("got %v, want %v", Words(bi), want)
	}
	for i, b := range bi {
		if b.Text != want[i] {
			t.Errorf("bigram[%d] = %q, want %q", i, b.Text, want[i])
		}
	}
}

func TestDeterministic(t *testing.T) {
	a := Words(Tokenize("Prefer PostgreSQL for relational data", true))
	b := Words(Tokenize("Prefer PostgreSQL for relational data", true))
	if len(a) != len(b) {
		t.Fatalf("non-deterministic token count")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("token[%d] differs: %q vs %q", i, a[i], b[i])
		}
	}
}
