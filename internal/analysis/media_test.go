package analysis

import (
	"errors"
	"testing"
)

var (
	jpegMagic = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d}
	pdfMagic  = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
		wantErr  bool
	}{
		{name: "jpeg", declared: "image/jpeg", data: jpegMagic, want: "image/jpeg"},
		{name: "jpg alias", declared: "image/jpg", data: jpegMagic, want: "image/jpeg"},
		{name: "png with params", declared: "image/png; q=1", data: pngMagic, want: "image/png"},
		{name: "octet stream pdf", declared: "application/octet-stream", data: pdfMagic, want: "application/pdf"},
		{name: "empty declared", declared: "", data: pngMagic, want: "image/png"},
		{name: "mismatch", declared: "image/png", data: jpegMagic, wantErr: true},
		{name: "unsupported declared", declared: "image/gif", data: []byte("GIF89a"), wantErr: true},
		{name: "unsupported detected", declared: "", data: []byte("plain words"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(tt.declared, tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedMedia) {
					t.Errorf("Sniff() error = %v, want ErrUnsupportedMedia", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sniff() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDataURL(t *testing.T) {
	mediaType, data, err := ParseDataURL(EncodeDataURL("image/png", pngMagic))
	if err != nil {
		t.Fatalf("ParseDataURL() error = %v", err)
	}
	if mediaType != "image/png" || string(data) != string(pngMagic) {
		t.Errorf("ParseDataURL() = %s, %v", mediaType, data)
	}

	for _, bad := range []string{
		"http://example.com/a.png",
		"data:image/png;base64",
		"data:;base64,AAAA",
		"data:image/png,rawbytes",
		"data:image/png;base64,!!!",
	} {
		if _, _, err := ParseDataURL(bad); err == nil {
			t.Errorf("ParseDataURL(%q) error = nil", bad)
		}
	}
}
