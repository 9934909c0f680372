package search

import "testing"

func TestQueryTokenizer_Tokenize(t *testing.T) {
	tok := newQueryTokenizer()

	tokens := tok.tokenize(`+invoice "net 30" vendor`)
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].Value != "invoice" || !tokens[0].Required || tokens[0].Type != TokenTerm {
		t.Errorf("unexpected first token: %+v", tokens[0])
	}
	if tokens[1].Value != "net 30" || tokens[1].Type != TokenPhrase {
		t.Errorf("unexpected phrase token: %+v", tokens[1])
	}
	if tokens[2].Value != "vendor" || tokens[2].Required {
		t.Errorf("unexpected third token: %+v", tokens[2])
	}
}

func TestQueryTokenizer_BuildFTS5Query(t *testing.T) {
	tok := newQueryTokenizer()

	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"optional only", "cat dog", `cat OR dog`},
		{"required and optional", "+cat dog mat", `cat AND (dog OR mat)`},
		{"phrase preserved", `"cat on mat"`, `"cat on mat"`},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tok.buildFTS5Query(tok.tokenize(tc.query))
			if got != tc.want {
				t.Errorf("buildFTS5Query(%q) = %q, want %q", tc.query, got, tc.want)
			}
		})
	}
}

func TestQueryTokenizer_NeedsQuoting(t *testing.T) {
	tok := newQueryTokenizer()

	if !tok.needsQuoting("AND") {
		t.Error("reserved word AND should need quoting")
	}
	if !tok.needsQuoting("invoice-2024") {
		t.Error("hyphenated term should need quoting")
	}
	if tok.needsQuoting("invoice") {
		t.Error("plain term should not need quoting")
	}
}
