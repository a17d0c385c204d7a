package utils

import "testing"

func TestClassifyAttachment(t *testing.T) {
	tests := []struct {
		name, mime string
		want       AttachmentKind
	}{
		{"diagram.png", "image/png", AttachmentMedia},
		{"brief.pdf", "application/pdf", AttachmentMedia},
		{"notes.md", "", AttachmentText},
		{"main.py", "application/octet-stream", AttachmentText},
		{"page", "text/html; charset=utf-8", AttachmentText},
		{"schema.sql", "application/sql", AttachmentText},
		{"archive.zip", "application/zip", AttachmentUnsupported},
		{"movie.mp4", "video/mp4", AttachmentUnsupported},
		{"unknown", "", AttachmentText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyAttachment(tt.name, tt.mime); got != tt.want {
				t.Errorf("ClassifyAttachment(%q, %q) = %v, want %v", tt.name, tt.mime, got, tt.want)
			}
		})
	}
}

func TestResolveMIMEType(t *testing.T) {
	if got := ResolveMIMEType("x.bin", "image/webp"); got != "image/webp" {
		t.Errorf("explicit type not kept: %q", got)
	}
	if got := ResolveMIMEType("noext", ""); got != "text/plain" {
		t.Errorf("fallback = %q", got)
	}
}
