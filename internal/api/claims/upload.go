package claims

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/tjfontaine/claim-intake/internal/analysis"
	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/intake"
	"github.com/tjfontaine/claim-intake/internal/server"
)

// multipartOverhead allows for form boundaries and headers around the file.
const multipartOverhead = 64 << 10

type urlUploadRequest struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// HandleUpload accepts evidence as a multipart "file" part or as a JSON
// {"url": ...} fetched on the claimant's behalf.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	id := conversationID(r)

	var (
		up  intake.Upload
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		up, err = h.readMultipart(w, r)
	case "application/json":
		up, err = h.readURL(w, r)
	default:
		err = domain.NewAPIError(domain.ErrorTypeUnsupportedMedia, "expected multipart/form-data or application/json")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	up.ContentType, err = analysis.Sniff(up.ContentType, up.Data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "content_type", up.ContentType)

	c, err := h.svc.Upload(r.Context(), id, up)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

func (h *Handler) maxUpload() int64 {
	return h.svc.Settings().MaxUploadBytes
}

func (h *Handler) readMultipart(w http.ResponseWriter, r *http.Request) (intake.Upload, error) {
	limit := h.maxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		return intake.Upload{}, uploadReadError(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return intake.Upload{}, domain.ErrInvalidRequest("multipart field \"file\" is required").WithParam("file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return intake.Upload{}, uploadReadError(err)
	}
	if int64(len(data)) > limit {
		return intake.Upload{}, tooLarge(limit)
	}
	return intake.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) readURL(w http.ResponseWriter, r *http.Request) (intake.Upload, error) {
	if h.fetcher == nil {
		return intake.Upload{}, domain.ErrInvalidRequest("uploads by url are disabled")
	}
	var req urlUploadRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		return intake.Upload{}, err
	}
	if req.URL == "" {
		return intake.Upload{}, domain.ErrInvalidRequest("url is required").WithParam("url")
	}
	doc, err := h.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		server.AddError(r.Context(), err)
		return intake.Upload{}, domain.ErrInvalidRequest("could not retrieve document").WithParam("url")
	}
	name := doc.Name
	if req.Name != "" {
		name = req.Name
	}
	return intake.Upload{Name: name, ContentType: doc.ContentType, Data: doc.Data}, nil
}

func uploadReadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return domain.NewAPIError(domain.ErrorTypeTooLarge, "upload exceeds size limit")
	}
	return domain.ErrInvalidRequest("invalid upload: " + err.Error())
}

func tooLarge(limit int64) error {
	return domain.NewAPIError(domain.ErrorTypeTooLarge, fmt.Sprintf("upload exceeds %d bytes", limit))
}
