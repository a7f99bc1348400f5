// Package ingest downloads attachment files and extracts bounded plain text
// to enrich a chat prompt. Extraction never fails a turn: unusable
// documents are logged and reported as absent.
package ingest

import (
	"cmp"
	"context"

	"go.uber.org/zap"
)

// DefaultMaxChars bounds extracted text when Options leaves it unset.
const DefaultMaxChars = 6000

// Options bound one extraction.
type Options struct {
	MaxChars int // runes kept before the truncation marker
	MaxLines int // tabular only: leading lines kept before MaxChars applies
}

var truncationMarkers = map[Kind]string{
	KindPDF:     "\n\n[...contenido truncado para no exceder el límite de tokens...]",
	KindDOCX:    "\n\n[...contenido DOCX truncado para no exceder el límite de tokens...]",
	KindTabular: "\n\n[...contenido CSV truncado para no exceder el límite de tokens...]",
}

var extractors = map[Kind]func([]byte) (string, error){
	KindPDF:     pdfText,
	KindDOCX:    docxText,
	KindTabular: tabularText,
}

// Downloader fetches a remote file. *Fetcher implements it.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor turns attachment URLs into prompt-ready text.
type Extractor struct {
	fetch  Downloader
	logger *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(fetch Downloader, logger *zap.Logger) *Extractor {
	return &Extractor{fetch: fetch, logger: logger}
}

// Extract downloads url and returns its normalized text. ok is false when
// the file could not be fetched or parsed, or held no text.
func (e *Extractor) Extract(ctx context.Context, kind Kind, url string, opts Options) (string, bool) {
	extract, known := extractors[kind]
	if !known {
		e.logger.Warn("unsupported document kind", zap.String("kind", string(kind)), zap.String("url", url))
		return "", false
	}

	data, err := e.fetch.Fetch(ctx, url)
	if err != nil {
		e.logger.Error("document download failed",
			zap.String("kind", string(kind)),
			zap.String("url", url),
			zap.Error(err),
		)
		return "", false
	}

	raw, err := extract(data)
	if err != nil {
		e.logger.Error("document extraction failed",
			zap.String("kind", string(kind)),
			zap.String("url", url),
			zap.Error(err),
		)
		return "", false
	}

	if kind == KindTabular {
		raw = HeadLines(raw, opts.MaxLines)
	}
	text := Normalize(raw, cmp.Or(opts.MaxChars, DefaultMaxChars), truncationMarkers[kind])
	if text == "" {
		e.logger.Debug("document has no text", zap.String("kind", string(kind)), zap.String("url", url))
		return "", false
	}
	return text, true
}

// ExtractDocument is Extract for an attachment with a known name.
func (e *Extractor) ExtractDocument(ctx context.Context, kind Kind, name, url string, opts Options) (Document, bool) {
	text, ok := e.Extract(ctx, kind, url, opts)
	if !ok {
		return Document{}, false
	}
	return Document{SourceURL: url, Name: cmp.Or(name, url), Kind: kind, Text: text}, true
}
