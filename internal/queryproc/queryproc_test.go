package queryproc

import "testing"

func TestProcessEndToEndStemsAndDropsStopWords(t *testing.T) {
	got := Process("the quickest running foxes")
	want := "quick run fox"
	if got != want {
		t.Fatalf("Process() = %q, want %q", got, want)
	}
}

func TestSanitizeCollapsesWhitespace(t *testing.T) {
	got := Sanitize("  hello    world  \n\t")
	if got != "hello world" {
		t.Fatalf("Sanitize() = %q", got)
	}
}

func TestExtractPhrasesPreservesQuotedSegment(t *testing.T) {
	phrases, residue := ExtractPhrases(`find "red fox" now`)
	if len(phrases) != 1 || phrases[0] != `"red fox"` {
		t.Fatalf("expected one preserved phrase, got %+v", phrases)
	}
	if residue != "find   now" {
		t.Fatalf("residue = %q", residue)
	}
}

func TestExtractPhrasesHandlesNestedQuotes(t *testing.T) {
	phrases, _ := ExtractPhrases(`"a"b"c"`)
	if len(phrases) != 1 {
		t.Fatalf("expected the nested-quote run to collapse into one phrase, got %+v", phrases)
	}
}

func TestTokenizeClassifiesOperatorModifierTerm(t *testing.T) {
	tokens := Tokenize("+required -excluded field:value plainterm")
	want := []TokenType{TokenOperator, TokenOperator, TokenModifier, TokenTerm}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(tokens))
	}
	for i, tok := range tokens {
		if tok.Type != want[i] {
			t.Fatalf("token %d: got type %d, want %d", i, tok.Type, want[i])
		}
	}
}

func TestRemoveStopWordsDropsNonExceptionStopWords(t *testing.T) {
	tokens := Tokenize("the cat is on the mat")
	tokens = RemoveStopWords(tokens)

	var texts []string
	for _, tok := range tokens {
		texts = append(texts, tok.Text)
	}

	for _, dropped := range []string{"the", "on"} {
		for _, got := range texts {
			if got == dropped {
				t.Fatalf("expected %q to be removed, got %+v", dropped, texts)
			}
		}
	}
	foundIs := false
	for _, got := range texts {
		if got == "is" {
			foundIs = true
		}
	}
	if !foundIs {
		t.Fatalf("expected exception word 'is' to survive, got %+v", texts)
	}
}

func TestNormalizeWordExceptionsAreUnchanged(t *testing.T) {
	for _, word := range []string{"series", "species", "test", "tests", "is", "was", "has", "does", "this", "his"} {
		if got := NormalizeWord(word); got != word {
			t.Fatalf("NormalizeWord(%q) = %q, want unchanged", word, got)
		}
	}
}

func TestNormalizeWordShortWordsUnchanged(t *testing.T) {
	for _, word := range []string{"a", "to", "cat", "run"} {
		if got := NormalizeWord(word); got != word {
			t.Fatalf("NormalizeWord(%q) = %q, want unchanged", word, got)
		}
	}
}

func TestNormalizeWordSuffixRules(t *testing.T) {
	cases := map[string]string{
		"fastest":  "fast",
		"quicker":  "quick",
		"running":  "run",
		"hopping":  "hop",
		"studying": "study",
		"applying": "apply",
		"tried":    "try",
		"walked":   "walk",
		"liked":    "lik",
		"stopped":  "stop",
		"studies":  "study",
		"boxes":    "box",
		"dishes":   "dish",
		"cats":     "cat",
	}
	for input, want := range cases {
		if got := NormalizeWord(input); got != want {
			t.Fatalf("NormalizeWord(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeTermsSkipsOperatorsAndModifiers(t *testing.T) {
	tokens := Tokenize("+running field:cats running")
	tokens = NormalizeTerms(tokens)
	if tokens[0].Text != "+running" {
		t.Fatalf("expected operator token unchanged, got %q", tokens[0].Text)
	}
	if tokens[1].Text != "field:cats" {
		t.Fatalf("expected modifier token unchanged, got %q", tokens[1].Text)
	}
	if tokens[2].Text != "run" {
		t.Fatalf("expected term token normalized, got %q", tokens[2].Text)
	}
}

func TestReconstructJoinsTokensAndPhrases(t *testing.T) {
	tokens := []Token{{Type: TokenTerm, Text: "fox"}, {Type: TokenOperator, Text: "-excluded"}}
	got := Reconstruct(tokens, []string{`"red fox"`})
	want := `fox -excluded "red fox"`
	if got != want {
		t.Fatalf("Reconstruct() = %q, want %q", got, want)
	}
}

func TestProcessPreservesPhraseVerbatim(t *testing.T) {
	got := Process(`find "the quick fox" running`)
	want := `fin run "the quick fox"`
	if got != want {
		t.Fatalf("Process() = %q, want %q", got, want)
	}
}
