package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valpere/dubtran/internal/batch"
	"github.com/valpere/dubtran/internal/pipeline"
)

type pageData struct {
	Tab         string
	Error       string
	Busy        bool
	LastElapsed string

	InputName string
	Input     []batch.Row
	Sample    string

	Rows     []batch.Row
	Warnings []string
	Cached   bool
	BatchID  string

	About template.HTML
}

func (s *Server) pageData(tab string) pageData {
	snap := s.session.snapshot()
	data := pageData{
		Tab:       tab,
		Busy:      snap.busy,
		InputName: snap.inputName,
		Input:     batch.Pair(snap.input, nil),
		Sample:    s.sample,
		About:     s.about,
	}
	if res := snap.result; res != nil {
		data.LastElapsed = fmt.Sprintf("%.2fs", res.Elapsed.Seconds())
		data.Rows = batch.Pair(res.Inputs, res.Outputs)
		data.Warnings = warnings(res)
		data.Cached = res.Cached
		data.BatchID = res.BatchID
	}
	return data
}

func warnings(res *pipeline.Result) []string {
	var out []string
	if res.Report.Mismatch() {
		out = append(out, "Warning: "+res.Report.String())
	}
	if len(res.MarkupLost) > 0 {
		out = append(out, fmt.Sprintf("Translations at positions %v dropped protected markup", res.MarkupLost))
	}
	for _, f := range res.Findings {
		out = append(out, fmt.Sprintf("Item %d does not look like English (detected %s, %s)", f.Position, f.Detected, f.Code))
	}
	return out
}

func (s *Server) renderIndex(c *gin.Context, status int, errMsg string) {
	data := s.pageData("translate")
	data.Error = errMsg
	c.HTML(status, "index.html", data)
}

func (s *Server) handleIndex(c *gin.Context) {
	s.renderIndex(c, http.StatusOK, "")
}

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		s.renderIndex(c, http.StatusBadRequest, "Choose a JSON file to upload.")
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.renderIndex(c, http.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
		return
	}
	defer f.Close()

	items, err := batch.Decode(f)
	if err != nil {
		s.renderIndex(c, http.StatusBadRequest, fmt.Sprintf("Invalid JSON format: %v", err))
		return
	}

	s.session.setInput(fh.Filename, items)
	c.Redirect(http.StatusSeeOther, "/")
}

// translate claims the session for one batch and releases it however Run
// returns, panics included. A nil items translates the uploaded input.
func (s *Server) translate(ctx context.Context, name string, items []batch.Item) (res *pipeline.Result, err error) {
	items, err = s.session.begin(name, items)
	if err != nil {
		return nil, err
	}
	defer func() { s.session.finish(res) }()

	return s.translator.Run(ctx, items)
}

func (s *Server) handleTranslate(c *gin.Context) {
	if _, err := s.translate(c.Request.Context(), "", nil); err != nil {
		s.renderIndex(c, statusFor(err), fmt.Sprintf("Error: %v", err))
		return
	}

	c.Redirect(http.StatusSeeOther, "/results")
}

func (s *Server) handleResults(c *gin.Context) {
	c.HTML(http.StatusOK, "results.html", s.pageData("results"))
}

func (s *Server) handleAbout(c *gin.Context) {
	c.HTML(http.StatusOK, "about.html", s.pageData("about"))
}

func (s *Server) handleDownload(c *gin.Context) {
	res := s.session.snapshot().result
	if res == nil {
		c.String(http.StatusNotFound, "no translation yet")
		return
	}

	var (
		buf         bytes.Buffer
		filename    string
		contentType string
		err         error
	)
	rows := batch.Pair(res.Inputs, res.Outputs)

	switch c.Param("format") {
	case "json":
		var data []byte
		data, err = batch.Encode(res.Outputs)
		buf.Write(data)
		filename, contentType = "hinglish_output.json", "application/json; charset=utf-8"
	case "csv":
		err = batch.WriteCSV(&buf, rows)
		filename, contentType = "hinglish_translations.csv", "text/csv; charset=utf-8"
	case "xlsx":
		err = batch.WriteXLSX(&buf, rows)
		filename, contentType = "hinglish_translations.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		c.String(http.StatusNotFound, "unknown format %q", c.Param("format"))
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("format", c.Param("format")).Msg("export failed")
		c.String(http.StatusInternalServerError, "export failed: %v", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

type apiReport struct {
	Expected   int    `json:"expected"`
	Parsed     int    `json:"parsed"`
	Filled     int    `json:"filled"`
	Missing    []int  `json:"missing,omitempty"`
	OutOfRange []int  `json:"out_of_range,omitempty"`
	Duplicates []int  `json:"duplicates,omitempty"`
	Mismatch   bool   `json:"mismatch"`
	Message    string `json:"message"`
}

type apiResult struct {
	BatchID           string       `json:"batch_id"`
	Outputs           []batch.Item `json:"outputs"`
	Report            apiReport    `json:"report"`
	Cached            bool         `json:"cached"`
	ElapsedMs         int64        `json:"elapsed_ms"`
	ProviderElapsedMs int64        `json:"provider_elapsed_ms"`
}

func (s *Server) handleAPITranslate(c *gin.Context) {
	items, err := batch.Decode(c.Request.Body)
	if err != nil {
		c.PureJSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	res, err := s.translate(c.Request.Context(), "api", items)
	if err != nil {
		c.PureJSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	r := res.Report
	c.PureJSON(http.StatusOK, apiResult{
		BatchID: res.BatchID,
		Outputs: res.Outputs,
		Report: apiReport{
			Expected:   r.Expected,
			Parsed:     r.Parsed,
			Filled:     r.Filled,
			Missing:    r.Missing,
			OutOfRange: r.OutOfRange,
			Duplicates: r.Duplicates,
			Mismatch:   r.Mismatch(),
			Message:    r.String(),
		},
		Cached:            res.Cached,
		ElapsedMs:         res.Elapsed.Milliseconds(),
		ProviderElapsedMs: res.ProviderElapsed.Milliseconds(),
	})
}

func (s *Server) handleAPIStats(c *gin.Context) {
	snap := s.session.snapshot()
	out := gin.H{"busy": snap.busy}
	if snap.result != nil {
		out["batch_id"] = snap.result.BatchID
		out["last_translation_seconds"] = snap.result.Elapsed.Seconds()
		out["items"] = len(snap.result.Inputs)
	}
	c.JSON(http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, batch.ErrInvalidInput), errors.Is(err, errNoInput):
		return http.StatusBadRequest
	case errors.Is(err, errBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
