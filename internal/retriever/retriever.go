// Package retriever searches a small on-disk corpus by shared-token overlap.
package retriever

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/bassam-ai/bassam/internal/domain"
	"github.com/bassam-ai/bassam/internal/textnorm"
)

// DefaultTopK is the result count when the caller passes 0.
const DefaultTopK = 3

var corpusExt = map[string]bool{".md": true, ".txt": true}

type document struct {
	domain.Document
	tokens map[string]struct{}
}

// Retriever holds the corpus loaded at startup. Later file changes are not seen.
type Retriever struct {
	docs []document
}

// Build reads every *.md and *.txt file beneath dirs, in lexical walk order.
// Unreadable files are skipped with a warning; a missing directory is an error.
func Build(dirs []string, logger *zap.Logger) (*Retriever, error) {
	r := &Retriever{}
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !corpusExt[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			raw, rerr := os.ReadFile(path)
			if rerr != nil {
				logger.Warn("Skipping unreadable corpus file", zap.String("path", path), zap.Error(rerr))
				return nil
			}
			r.docs = append(r.docs, newDocument(path, string(raw)))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk corpus %s: %w", dir, err)
		}
	}
	logger.Info("Corpus loaded", zap.Int("documents", len(r.docs)), zap.Strings("dirs", dirs))
	return r, nil
}

// FromDocuments builds a Retriever over in-memory documents, keeping their order.
func FromDocuments(docs []domain.Document) *Retriever {
	r := &Retriever{docs: make([]document, 0, len(docs))}
	for _, d := range docs {
		r.docs = append(r.docs, newDocument(d.Path, d.Content))
	}
	return r
}

func newDocument(path, content string) document {
	set := make(map[string]struct{})
	for _, t := range textnorm.Tokens(content) {
		set[t] = struct{}{}
	}
	return document{Document: domain.Document{Path: path, Content: content}, tokens: set}
}

// Len is the number of loaded documents.
func (r *Retriever) Len() int { return len(r.docs) }

// Retrieve returns up to topK documents sharing the most distinct tokens with
// query. Documents sharing none are dropped; ties keep corpus order.
// An empty corpus yields domain.ErrNotFound.
func (r *Retriever) Retrieve(query string, topK int) ([]domain.Document, error) {
	if len(r.docs) == 0 {
		return nil, fmt.Errorf("local corpus: %w", domain.ErrNotFound)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryTokens := uniqueTokens(query)
	type hit struct {
		doc   domain.Document
		score int
	}
	var hits []hit
	for _, d := range r.docs {
		score := 0
		for _, t := range queryTokens {
			if _, ok := d.tokens[t]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{doc: d.Document, score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return b.score - a.score })

	out := make([]domain.Document, 0, min(topK, len(hits)))
	for _, h := range hits[:min(topK, len(hits))] {
		out = append(out, h.doc)
	}
	return out, nil
}

func uniqueTokens(s string) []string {
	tokens := textnorm.Tokens(s)
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// IsNotFound reports whether err means the corpus is empty.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
