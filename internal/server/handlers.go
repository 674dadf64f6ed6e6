package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/straja-ai/waterlog/internal/detect"
	"github.com/straja-ai/waterlog/internal/imagesrc"
	"github.com/straja-ai/waterlog/internal/logging"
	"github.com/straja-ai/waterlog/internal/redact"
)

const (
	multipartMemory = 8 << 20
	previewLimit    = 1000

	msgMissingImageURL   = "Missing image_url"
	msgJSONMissingSource = "JSON body must include 'image_url' or 'image' (base64)."
	msgMultipartNoFile   = "multipart/form-data received but no 'file' field present."
	msgUnsupportedFormat = "Unsupported request format. Send multipart form with 'file', or JSON with 'image_url' or 'image'."
)

type validationError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type validationResponse struct {
	Detail         string            `json:"detail"`
	Errors         []validationError `json:"errors"`
	RawBodyPreview *string           `json:"raw_body_preview"`
}

type errorBody struct {
	Error string `json:"error"`
}

// handleDetect accepts a multipart upload, a form or JSON image_url, or a JSON base64 image.
// URL inputs are handed to the remote flow and use its policy.
func (s *Server) handleDetect(ctx context.Context, r *http.Request) outcome {
	switch mediaType(r) {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return bodyErrorOutcome(err, msgUnsupportedFormat)
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if file, hdr, err := r.FormFile("file"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return bodyErrorOutcome(err, "Failed to read uploaded file")
			}
			return s.runLocal(ctx, data, hdr.Filename)
		}
		if u := strings.TrimSpace(r.FormValue("image_url")); u != "" {
			return s.runURL(ctx, u)
		}
		return missingOutcome(msgMultipartNoFile)

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return bodyErrorOutcome(err, msgUnsupportedFormat)
		}
		if u := strings.TrimSpace(r.PostFormValue("image_url")); u != "" {
			return s.runURL(ctx, u)
		}
		return missingOutcome(msgUnsupportedFormat)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return bodyErrorOutcome(err, "Failed to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return missingOutcome(msgUnsupportedFormat)
	}

	fields, verr := parseObject(body)
	if verr != nil {
		if mediaType(r) == "application/json" {
			return validationOutcome(ctx, body, *verr)
		}
		return missingOutcome(msgUnsupportedFormat)
	}

	imageURL, verr := stringField(fields, "image_url")
	if verr != nil {
		return validationOutcome(ctx, body, *verr)
	}
	if imageURL != "" {
		return s.runURL(ctx, imageURL)
	}

	inline, verr := stringField(fields, "image")
	if verr != nil {
		return validationOutcome(ctx, body, *verr)
	}
	if inline != "" {
		img, err := imagesrc.DecodeInline(inline)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("inline image decode failed")
			return resultOutcome(http.StatusOK, detect.FailedResult(err))
		}
		return resultOutcome(http.StatusOK, s.pipeline.Run(ctx, img, s.detectPolicy))
	}

	return missingOutcome(msgJSONMissingSource)
}

// handleDetectURL fetches a remote image and runs it under the remote policy.
func (s *Server) handleDetectURL(ctx context.Context, r *http.Request) outcome {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return bodyErrorOutcome(err, "Failed to read request body")
	}

	fields, verr := parseObject(body)
	if verr != nil {
		return validationOutcome(ctx, body, *verr)
	}
	imageURL, verr := stringField(fields, "image_url")
	if verr != nil {
		return validationOutcome(ctx, body, *verr)
	}
	if imageURL == "" {
		logging.FromContext(ctx).Warn("missing image_url in payload")
		return missingOutcome(msgMissingImageURL)
	}
	return s.runURL(ctx, imageURL)
}

func (s *Server) runLocal(ctx context.Context, data []byte, filename string) outcome {
	img, err := imagesrc.Decode(data)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("filename", filename).Warn("upload decode failed")
		return resultOutcome(http.StatusOK, detect.FailedResult(err).WithFilename(filename))
	}
	res := s.pipeline.Run(ctx, img, s.detectPolicy)
	return resultOutcome(http.StatusOK, res.WithFilename(filename))
}

func (s *Server) runURL(ctx context.Context, imageURL string) outcome {
	log := logging.FromContext(ctx).WithField("source", redact.URL(imageURL))

	img, err := s.fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		log.WithField("error", redact.String(err.Error())).Warn("remote image unavailable")
		return resultOutcome(http.StatusOK, detect.FailedResult(err).WithURL(imageURL))
	}
	log.WithField("size", img.Bounds().Size().String()).Debug("remote image fetched")

	res := s.pipeline.Run(ctx, img, s.detectURLPolicy)
	return resultOutcome(http.StatusOK, res.WithURL(imageURL))
}

func missingOutcome(msg string) outcome {
	res := detect.FailedResult(detect.ErrMissingInput)
	res.Error = msg
	return resultOutcome(http.StatusBadRequest, res)
}

func bodyErrorOutcome(err error, msg string) outcome {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return outcome{
			status: http.StatusRequestEntityTooLarge,
			body:   errorBody{Error: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit)},
		}
	}
	return missingOutcome(msg)
}

func validationOutcome(ctx context.Context, body []byte, verr validationError) outcome {
	var preview *string
	if len(body) > 0 {
		p := truncateUTF8(body, previewLimit)
		preview = &p
	}
	logging.FromContext(ctx).WithField("errors", verr.Msg).
		WithField("raw_body", redact.Truncate(redact.String(string(body)), 200)).
		Warn("request validation failed")

	return outcome{
		status: http.StatusUnprocessableEntity,
		body: validationResponse{
			Detail:         "Request validation failed. See 'errors' for details.",
			Errors:         []validationError{verr},
			RawBodyPreview: preview,
		},
	}
}

// parseObject decodes body as a JSON object.
func parseObject(body []byte) (map[string]json.RawMessage, *validationError) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &validationError{Loc: []string{"body"}, Msg: "Field required", Type: "missing"}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		if trimmed[0] != '{' {
			return nil, &validationError{Loc: []string{"body"}, Msg: "Input should be a valid dictionary", Type: "dict_type"}
		}
		return nil, &validationError{Loc: []string{"body"}, Msg: fmt.Sprintf("JSON decode error: %v", err), Type: "json_invalid"}
	}
	if fields == nil {
		return nil, &validationError{Loc: []string{"body"}, Msg: "Input should be a valid dictionary", Type: "dict_type"}
	}
	return fields, nil
}

// stringField returns fields[key] as a trimmed string. Absent and null values are "".
func stringField(fields map[string]json.RawMessage, key string) (string, *validationError) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", &validationError{Loc: []string{"body", key}, Msg: "Input should be a valid string", Type: "string_type"}
	}
	return strings.TrimSpace(v), nil
}

func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

func truncateUTF8(b []byte, max int) string {
	if len(b) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(b[cut]) {
			cut--
		}
		b = b[:cut]
	}
	return strings.ToValidUTF8(string(b), "�")
}
