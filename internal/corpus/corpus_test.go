package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeSource struct {
	refs    []Document
	users   []Document
	refErr  error
	userErr error
}

func (f *fakeSource) ReferenceDocuments(context.Context) ([]Document, error) {
	return f.refs, f.refErr
}

func (f *fakeSource) UserScenarioDocuments(context.Context) ([]Document, error) {
	return f.users, f.userErr
}

func writeStatic(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "historical_cases.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trim", "  rate shock  ", "rate shock"},
		{"collapse", "rate\n\t shock", "rate shock"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeText_TruncatesRunes(t *testing.T) {
	long := strings.Repeat("é", MaxTextChars+10)
	got := NormalizeText(long)
	if n := len([]rune(got)); n != MaxTextChars {
		t.Fatalf("expected %d runes, got %d", MaxTextChars, n)
	}
	name := NormalizeName(strings.Repeat("x", 200))
	if len(name) != MaxNameChars {
		t.Fatalf("expected name of %d chars, got %d", MaxNameChars, len(name))
	}
}

func TestLoader_SourceFirst(t *testing.T) {
	src := &fakeSource{
		refs:  []Document{{ID: "R1", Name: "Ref", Text: "  liquidity   crunch "}},
		users: []Document{{ID: "U1", Name: "User", Text: "rate shock"}, {ID: "R1", Name: "dup", Text: "x"}},
	}
	path := writeStatic(t, `[{"id":"S1","name":"Static","text":"static"}]`)

	docs := NewLoader(src, path, nil).Load(context.Background())
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(docs), docs)
	}
	if docs[0].ID != "R1" || docs[0].Text != "liquidity crunch" {
		t.Errorf("unexpected first document: %+v", docs[0])
	}
	if docs[1].ID != "U1" {
		t.Errorf("expected U1 second, got %s", docs[1].ID)
	}
}

func TestLoader_FallsBackToStaticFile(t *testing.T) {
	path := writeStatic(t, `[
		{"id":"S1","name":"Static one","text":"static text"},
		"not an object",
		{"name":"","text":""}
	]`)

	tests := []struct {
		name string
		src  Source
	}{
		{"nil source", nil},
		{"source error", &fakeSource{refErr: errors.New("db down")}},
		{"empty source", &fakeSource{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := NewLoader(tt.src, path, nil).Load(context.Background())
			if len(docs) != 2 {
				t.Fatalf("expected 2 documents, got %d", len(docs))
			}
			if docs[1].ID != "HC-003" || docs[1].Name != "Case 3" || docs[1].Text != " " {
				t.Errorf("defaults not applied: %+v", docs[1])
			}
		})
	}
}

func TestLoader_MissingStaticFileIsEmpty(t *testing.T) {
	docs := NewLoader(nil, filepath.Join(t.TempDir(), "missing.json"), nil).Load(context.Background())
	if len(docs) != 0 {
		t.Fatalf("expected empty corpus, got %d", len(docs))
	}
	if docs == nil {
		t.Fatal("expected non-nil empty corpus")
	}
}

func TestLoadStaticFile_Errors(t *testing.T) {
	if _, err := LoadStaticFile(writeStatic(t, `[]`)); err == nil {
		t.Error("expected error for empty array")
	}
	if _, err := LoadStaticFile(writeStatic(t, `{"id":"x"}`)); err == nil {
		t.Error("expected error for non-array file")
	}
}
