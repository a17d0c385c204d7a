package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

type AttachmentKind int

const (
	AttachmentUnsupported AttachmentKind = iota
	// AttachmentMedia is sent to the model as an inline blob.
	AttachmentMedia
	// AttachmentText is appended to the prompt.
	AttachmentText
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentMedia:
		return "media"
	case AttachmentText:
		return "text"
	}
	return "unsupported"
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".cpp": true, ".html": true, ".css": true, ".json": true, ".sql": true, ".xml": true,
}

// ResolveMIMEType falls back to the file extension, then to text/plain.
func ResolveMIMEType(name, mimeType string) string {
	if mimeType = strings.TrimSpace(mimeType); mimeType != "" {
		return mimeType
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return "text/plain"
}

// ClassifyAttachment decides how an uploaded file reaches the model.
func ClassifyAttachment(name, mimeType string) AttachmentKind {
	mt, _, err := mime.ParseMediaType(ResolveMIMEType(name, mimeType))
	if err != nil {
		return AttachmentUnsupported
	}
	switch {
	case strings.HasPrefix(mt, "image/"), mt == "application/pdf":
		return AttachmentMedia
	case strings.HasPrefix(mt, "text/"), textExtensions[strings.ToLower(filepath.Ext(name))]:
		return AttachmentText
	}
	return AttachmentUnsupported
}
