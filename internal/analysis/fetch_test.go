package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/receipts/r1.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngMagic)
		case "/untyped/scan.pdf":
			w.Header()["Content-Type"] = nil
			w.Write(pdfMagic)
		case "/big.jpg":
			w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	f := NewFetcher(WithFetchHTTPClient(ts.Client()), WithMaxSize(32))
	ctx := context.Background()

	doc, err := f.Fetch(ctx, ts.URL+"/receipts/r1.png")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if doc.Name != "r1.png" || doc.ContentType != "image/png" || string(doc.Data) != string(pngMagic) {
		t.Errorf("Fetch() = %+v", doc)
	}

	doc, err = f.Fetch(ctx, ts.URL+"/untyped/scan.pdf")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if doc.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q, want inferred application/pdf", doc.ContentType)
	}

	if _, err := f.Fetch(ctx, ts.URL+"/big.jpg"); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Fetch(big) error = %v, want too large", err)
	}
	if _, err := f.Fetch(ctx, ts.URL+"/missing.png"); err == nil {
		t.Error("Fetch(missing) error = nil, want status error")
	}
	if _, err := f.Fetch(ctx, "ftp://example.com/a.png"); err == nil {
		t.Error("Fetch(ftp) error = nil, want scheme error")
	}
}

func TestFetcher_DataURL(t *testing.T) {
	f := NewFetcher(WithMaxSize(16))

	doc, err := f.Fetch(context.Background(), EncodeDataURL("image/jpeg", jpegMagic))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if doc.ContentType != "image/jpeg" || len(doc.Data) != len(jpegMagic) {
		t.Errorf("Fetch() = %+v", doc)
	}

	if _, err := f.Fetch(context.Background(), EncodeDataURL("image/png", make([]byte, 17))); err == nil {
		t.Error("Fetch() error = nil, want too large")
	}
}

func TestFetcher_DefaultRefusesLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngMagic)
	}))
	defer ts.Close()

	if _, err := NewFetcher().Fetch(context.Background(), ts.URL+"/r.png"); err == nil {
		t.Error("Fetch() error = nil, want loopback refusal")
	}
}
