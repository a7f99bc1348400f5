package ingest

import (
	"path"
	"strings"
)

// Kind is an extractable document format.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindTabular Kind = "tabular"
)

// Label is the heading used when folding extracted text into a prompt.
func (k Kind) Label() string {
	switch k {
	case KindPDF:
		return "PDF"
	case KindDOCX:
		return "DOC/DOCX"
	case KindTabular:
		return "CSV/XLS(X)"
	}
	return string(k)
}

// DetectKind classifies an attachment. PDFs are recognized by MIME type or
// extension; the other kinds by extension only. ok is false for anything
// that is not extractable.
func DetectKind(mimeType, filename string) (Kind, bool) {
	ext := strings.ToLower(path.Ext(filename))
	switch {
	case mimeType == "application/pdf" || ext == ".pdf":
		return KindPDF, true
	case ext == ".docx" || ext == ".doc":
		return KindDOCX, true
	case ext == ".csv" || ext == ".xls" || ext == ".xlsx":
		return KindTabular, true
	}
	return "", false
}

// Document is extracted text for the current turn. It is never persisted.
type Document struct {
	SourceURL string
	Name      string
	Kind      Kind
	Text      string
}
