package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Loader builds a Corpus from a Source, falling back to a static JSON file
// when the source is unavailable or empty.
type Loader struct {
	source     Source
	staticPath string
	logger     *slog.Logger
}

// NewLoader creates a Loader. source and staticPath may each be empty.
func NewLoader(source Source, staticPath string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, staticPath: staticPath, logger: logger}
}

// Load never fails: an unavailable corpus is an empty corpus plus a warning.
func (l *Loader) Load(ctx context.Context) Corpus {
	if docs := l.fromSource(ctx); len(docs) > 0 {
		return docs
	}
	if l.staticPath == "" {
		l.logger.Warn("corpus unavailable: no source documents and no static file")
		return Corpus{}
	}
	docs, err := LoadStaticFile(l.staticPath)
	if err != nil {
		l.logger.Warn("corpus static file unusable", "path", l.staticPath, "err", err)
		return Corpus{}
	}
	l.logger.Info("corpus loaded from static file", "path", l.staticPath, "documents", len(docs))
	return docs
}

func (l *Loader) fromSource(ctx context.Context) Corpus {
	if l.source == nil {
		return nil
	}
	refs, err := l.source.ReferenceDocuments(ctx)
	if err != nil {
		l.logger.Warn("corpus reference documents unavailable", "err", err)
		return nil
	}
	users, err := l.source.UserScenarioDocuments(ctx)
	if err != nil {
		l.logger.Warn("corpus user scenarios unavailable", "err", err)
		return nil
	}
	docs := dedupe(normalizeAll(append(refs, users...)))
	if len(docs) > 0 {
		l.logger.Info("corpus loaded from source", "reference", len(refs), "user", len(users))
	}
	return docs
}

// staticRecord mirrors one entry of the static cases file. Fields are
// decoded loosely because the file is hand-maintained.
type staticRecord struct {
	ID   any `json:"id"`
	Name any `json:"name"`
	Text any `json:"text"`
}

// LoadStaticFile parses a JSON array of {id, name, text} objects. Missing
// ids become HC-### (1-based), missing names "Case N", empty texts " ".
// Non-object entries are skipped.
func LoadStaticFile(path string) (Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", path, err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("corpus: parse %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, errors.New("corpus: static file has no documents")
	}

	docs := make(Corpus, 0, len(raw))
	for i, item := range raw {
		if trimmed := bytes.TrimSpace(item); len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var rec staticRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		id := stringOf(rec.ID)
		if id == "" {
			id = fmt.Sprintf("HC-%03d", i+1)
		}
		name := NormalizeName(stringOf(rec.Name))
		if name == "" {
			name = fmt.Sprintf("Case %d", i+1)
		}
		docs = append(docs, Document{ID: id, Name: name, Text: NormalizeText(stringOf(rec.Text))})
	}
	docs = dedupe(normalizeAll(docs))
	if len(docs) == 0 {
		return nil, errors.New("corpus: static file has no usable documents")
	}
	return docs, nil
}

func stringOf(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	default:
		return fmt.Sprint(tv)
	}
}

func normalizeAll(docs []Document) Corpus {
	out := make(Corpus, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			continue
		}
		text := NormalizeText(d.Text)
		if text == "" {
			text = " "
		}
		name := NormalizeName(d.Name)
		if name == "" {
			name = d.ID
		}
		out = append(out, Document{ID: d.ID, Name: name, Text: text})
	}
	return out
}

// dedupe keeps the first document for each ID.
func dedupe(docs Corpus) Corpus {
	seen := make(map[string]bool, len(docs))
	out := docs[:0]
	for _, d := range docs {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}
