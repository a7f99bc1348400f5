package chat

import (
	"regexp"
	"strings"

	"github.com/rpenyav/ia-backend/internal/conversation"
	"github.com/rpenyav/ia-backend/internal/ingest"
)

// AttachmentInput is an attachment as sent by the client. The file has
// already been uploaded; only its metadata travels with the turn.
type AttachmentInput struct {
	Type     string `json:"type,omitempty"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

var imageExt = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|bmp|svg)$`)

// isImage reports whether the declared MIME type or file name marks an image.
func isImage(mimeType, filename string) bool {
	return strings.HasPrefix(mimeType, "image/") || imageExt.MatchString(filename)
}

// InferAttachmentType keeps an explicit, known type and otherwise infers
// image or file from the MIME type and file name.
func InferAttachmentType(a AttachmentInput) conversation.AttachmentType {
	switch t := conversation.AttachmentType(strings.ToLower(strings.TrimSpace(a.Type))); t {
	case conversation.AttachmentImage, conversation.AttachmentFile,
		conversation.AttachmentLink, conversation.AttachmentOther:
		return t
	}
	if isImage(a.MimeType, a.Filename) {
		return conversation.AttachmentImage
	}
	return conversation.AttachmentFile
}

// NormalizeAttachments converts client attachments into persisted metadata.
// Entries without a URL are dropped.
func NormalizeAttachments(in []AttachmentInput) []conversation.Attachment {
	out := make([]conversation.Attachment, 0, len(in))
	for _, a := range in {
		if strings.TrimSpace(a.URL) == "" {
			continue
		}
		out = append(out, conversation.Attachment{
			Type:     InferAttachmentType(a),
			URL:      a.URL,
			Filename: a.Filename,
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	return out
}

// ImageURLs returns the references forwarded to the model as images.
func ImageURLs(atts []conversation.Attachment) []string {
	var urls []string
	for _, a := range atts {
		if a.Type == conversation.AttachmentImage || isImage(a.MimeType, a.Filename) {
			urls = append(urls, a.URL)
		}
	}
	return urls
}

// documentRef is an attachment whose text can be extracted.
type documentRef struct {
	kind ingest.Kind
	name string
	url  string
}

var documentOrder = []ingest.Kind{ingest.KindPDF, ingest.KindDOCX, ingest.KindTabular}

// documents picks the extractable attachments: PDFs first, then word
// documents, then spreadsheets, each group in upload order.
func documents(atts []conversation.Attachment) []documentRef {
	var refs []documentRef
	for _, want := range documentOrder {
		for _, a := range atts {
			if kind, ok := ingest.DetectKind(a.MimeType, a.Filename); ok && kind == want {
				refs = append(refs, documentRef{kind: kind, name: a.Filename, url: a.URL})
			}
		}
	}
	return refs
}
