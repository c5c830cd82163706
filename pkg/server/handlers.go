package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/roffe/elevtrace/pkg/auxtable"
	"github.com/roffe/elevtrace/pkg/export"
	"github.com/roffe/elevtrace/pkg/session"
	"github.com/roffe/elevtrace/pkg/source"
	"github.com/roffe/elevtrace/pkg/trace"
	"github.com/roffe/elevtrace/pkg/view"
)

const workbookView = "xlsx"

var errMissingFile = errors.New(`multipart field "file" is required`)

type errorResponse struct {
	Error string `json:"error"`
}

type traceResponse struct {
	Status   session.Status   `json:"status"`
	Document *documentSummary `json:"document,omitempty"`
}

type documentSummary struct {
	FileName      string            `json:"fileName"`
	FileSize      string            `json:"fileSize"`
	ParseDuration string            `json:"parseDuration"`
	Control       map[string]string `json:"controlInfo"`
	Sections      map[string]int    `json:"sections"`
	HasDriver     bool              `json:"hasDriver"`
}

type configResponse struct {
	Name string `json:"name"`
	auxtable.Stats
}

type describeResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func summarize(doc *trace.Document) *documentSummary {
	sum := &documentSummary{
		FileName:      doc.FileName,
		FileSize:      source.FormatSize(doc.FileSize),
		ParseDuration: doc.ParseDuration.String(),
		Control:       doc.Control,
		Sections:      make(map[string]int, len(trace.SectionKinds)),
		HasDriver:     doc.Driver != nil,
	}
	for _, kind := range trace.SectionKinds {
		sum.Sections[string(kind)] = doc.SectionLen(kind)
	}
	return sum
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	var (
		ve *source.ValidationError
		re *source.ReadError
		pe *trace.ParseError
		cp *auxtable.ConfigParseError
		cl *auxtable.ConfigLoadError
	)
	switch {
	case errors.As(err, &ve), errors.Is(err, errMissingFile):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoDocument), errors.Is(err, trace.ErrUnknownSection):
		return http.StatusNotFound
	case errors.As(err, &cl):
		return http.StatusBadGateway
	case errors.As(err, &re), errors.As(err, &pe), errors.As(err, &cp):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// formFile reads the "file" part of a multipart upload. The read stops one
// byte past max so the size check downstream still fires.
func formFile(r *http.Request, max int64) (string, []byte, error) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, errMissingFile
		}
		return "", nil, &source.ReadError{Name: "upload", Err: err}
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return "", nil, &source.ReadError{Name: hdr.Filename, Err: err}
	}
	return hdr.Filename, b, nil
}

func (s *Server) traceResponse() traceResponse {
	resp := traceResponse{Status: s.sess.Status()}
	if doc := s.sess.Document(); doc != nil {
		resp.Document = summarize(doc)
	}
	return resp
}

func (s *Server) handleTraceStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.traceResponse())
}

func (s *Server) handleTraceUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	name, b, err := formFile(r, source.MaxTraceSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.sess.LoadTraceBytes(name, b); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.traceResponse())
}

func (s *Server) handleTraceClear(w http.ResponseWriter, r *http.Request) {
	s.sess.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	recs, err := s.sess.Section(trace.SectionKind(r.PathValue("kind")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) configResponse() (configResponse, bool) {
	idx, name := s.sess.Config()
	if idx == nil {
		return configResponse{}, false
	}
	return configResponse{Name: name, Stats: idx.Stats()}, true
}

func (s *Server) handleConfigStats(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.configResponse()
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no config loaded"})
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleConfigLoad replaces the config from ?url=, ?builtin=1 or an upload.
func (s *Server) handleConfigLoad(w http.ResponseWriter, r *http.Request) {
	var err error
	q := r.URL.Query()
	switch {
	case q.Get("url") != "":
		err = s.sess.LoadConfigURL(r.Context(), q.Get("url"))
	case q.Get("builtin") != "":
		err = s.sess.LoadBuiltinConfig()
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		var (
			name string
			b    []byte
		)
		if name, b, err = formFile(r, source.MaxConfigSize); err == nil {
			err = s.sess.LoadConfigBytes(name, b)
		}
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, _ := s.configResponse()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	order := auxtable.NoOrder
	if v := q.Get("order"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid order %q", v)})
			return
		}
		order = n
	}
	s.writeJSON(w, http.StatusOK, describeResponse{
		Name:        name,
		Description: s.sess.Describe(name, order, q.Get("table")),
	})
}

// handleViews returns the filtered rows of one view, ?view= defaulting to
// bit, with the Query fields taken from the remaining parameters.
func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := view.Bit
	if v := q.Get("view"); v != "" {
		n, err := view.ParseName(v)
		if err != nil {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		name = n
	}
	set, err := s.sess.Views()
	if err != nil {
		s.writeError(w, err)
		return
	}
	query := view.Query{
		Term:       q.Get("q"),
		Channel:    q.Get("channel"),
		HidePrefix: q.Get("hide"),
	}
	switch q.Get("state") {
	case "active":
		query.State = view.OnlyActive
	case "inactive":
		query.State = view.OnlyInactive
	}

	var rows any
	switch name {
	case view.Bit:
		rows = view.FilterBits(set.Bits, query)
	case view.DriverBit:
		rows = view.FilterBits(set.DriverBits, query)
	case view.Data25ms:
		rows = view.FilterNumeric(set.Data25ms, query)
	case view.Data50ms:
		rows = view.FilterNumeric(set.Data50ms, query)
	case view.Snapshot:
		rows = view.FilterSnapshot(set.Snapshot, query)
	case view.DriverSnapshot:
		rows = view.FilterSnapshot(set.DriverSnapshot, query)
	case view.DriverNumeric:
		rows = set.DriverNumeric
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("view")
	var name view.Name
	if raw != workbookView {
		n, err := view.ParseName(raw)
		if err != nil {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		name = n
	}
	set, err := s.sess.Views()
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Render fully before the headers go out so a failure is still a
	// proper error response.
	var buf bytes.Buffer
	var fileName, contentType string
	if raw == workbookView {
		err = export.WriteWorkbook(&buf, set)
		fileName = export.WorkbookName(s.now())
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	} else {
		err = export.WriteCSV(&buf, set, name)
		fileName = export.FileName(name, s.now())
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		s.log.WithError(err).Debug("write export")
	}
}
