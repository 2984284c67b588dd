// Package web serves the interactive translation session: upload a batch,
// preview it, translate it and download the result.
//
// The session is process-wide and single-user. It remembers the last
// uploaded input and the last completed batch; only one batch can be in
// flight at a time.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/valpere/dubtran/internal/batch"
	"github.com/valpere/dubtran/internal/markdown"
	"github.com/valpere/dubtran/internal/pipeline"
)

//go:embed templates/*.html
var templatesFS embed.FS

var sampleItems = []batch.Item{
	{Text: "Hello, how are you doing today?"},
	{Text: "What's your name? I'm John."},
	{Text: "The price is $50 for this product."},
}

// Translator runs one batch. *pipeline.Pipeline satisfies it.
type Translator interface {
	Run(ctx context.Context, items []batch.Item) (*pipeline.Result, error)
}

// Server is the web session's HTTP front end.
type Server struct {
	translator Translator
	logger     zerolog.Logger
	engine     *gin.Engine
	session    *session
	about      template.HTML
	sample     string
}

// New parses the embedded templates and registers the routes.
func New(tr Translator, logger zerolog.Logger) (*Server, error) {
	tpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	sample, err := batch.Encode(sampleItems)
	if err != nil {
		return nil, err
	}

	s := &Server{
		translator: tr,
		logger:     logger,
		session:    &session{},
		about:      template.HTML(markdown.ToHTML(markdown.About)),
		sample:     string(sample),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	engine.SetHTMLTemplate(tpl)
	engine.MaxMultipartMemory = 8 << 20

	engine.GET("/", s.handleIndex)
	engine.POST("/upload", s.handleUpload)
	engine.POST("/translate", s.handleTranslate)
	engine.GET("/results", s.handleResults)
	engine.GET("/about", s.handleAbout)
	engine.GET("/download/:format", s.handleDownload)

	api := engine.Group("/api")
	api.POST("/translate", s.handleAPITranslate)
	api.GET("/stats", s.handleAPIStats)

	s.engine = engine
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("web session listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Msg("shutting down web session")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
