// Package api provides the REST API server for beatgrid
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/daily"
	"github.com/james-see/beatgrid/pkg/pattern"
	"github.com/james-see/beatgrid/pkg/share"
	"github.com/james-see/beatgrid/pkg/store"
)

// @title Beatgrid API
// @version 1.0
// @description Drum grid export, daily puzzle beats and share links
// @host localhost:8080
// @BasePath /api/v1

// MaxUploadSize limits imported files
const MaxUploadSize = 1 << 20

// Server serves the beatgrid API
type Server struct {
	conv    *converter.Converter
	repo    store.Repository
	baseURL string
	now     func() time.Time
	logger  *slog.Logger
	router  *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithBaseURL sets the page URL share links point at
func WithBaseURL(base string) Option {
	return func(s *Server) { s.baseURL = base }
}

// WithClock overrides the clock used for today's beat
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the application logger. gin keeps its own request log.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds the router
func NewServer(conv *converter.Converter, repo store.Repository, opts ...Option) *Server {
	s := &Server{
		conv:    conv,
		repo:    repo,
		baseURL: "http://localhost:8080/",
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.repo == nil {
		s.repo = store.NewMemoryStore()
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/instruments", listInstruments)
		v1.GET("/formats", listFormats)
		v1.GET("/daily", s.handleDaily)
		v1.GET("/challenge/:level", s.handleChallenge)
		v1.POST("/export/:format", s.handleExport)
		v1.POST("/import", s.handleImport)
		v1.POST("/share", s.handleShareEncode)
		v1.GET("/share", s.handleShareDecode)
		v1.POST("/grade", s.handleGrade)
		v1.GET("/beats", s.handleListBeats)
		v1.POST("/beats", s.handleSaveBeat)
		v1.GET("/beats/:key", s.handleLoadBeat)
		v1.PUT("/beats/:key", s.handleSaveBeat)
		v1.DELETE("/beats/:key", s.handleDeleteBeat)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("api server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// BeatRequest is the body accepted wherever a beat is posted. Grid takes the
// 112-character form; Pattern takes a 7x16 boolean matrix and wins when both are set.
type BeatRequest struct {
	Name    string   `json:"name"`
	BPM     int      `json:"bpm"`
	Grid    string   `json:"grid"`
	Pattern [][]bool `json:"pattern"`
}

func (r BeatRequest) decode() (pattern.Pattern, int, error) {
	bpm := r.BPM
	if bpm == 0 {
		bpm = pattern.DefaultBPM
	}
	bpm = pattern.ClampBPM(bpm)

	if r.Pattern != nil {
		p, err := pattern.FromGrid(r.Pattern)
		return p, bpm, err
	}
	p, err := pattern.ParseBits(r.Grid)
	return p, bpm, err
}

// BeatResponse describes a beat
type BeatResponse struct {
	Key     string   `json:"key,omitempty"`
	Name    string   `json:"name"`
	Number  int      `json:"number,omitempty"`
	BPM     int      `json:"bpm"`
	Grid    string   `json:"grid"`
	Pattern [][]bool `json:"pattern"`
	Notes   int      `json:"notes"`
	Link    string   `json:"link,omitempty"`
}

func (s *Server) beatResponse(name string, number int, p pattern.Pattern, bpm int) BeatResponse {
	resp := BeatResponse{
		Name:    name,
		Number:  number,
		BPM:     bpm,
		Grid:    p.Bits(),
		Pattern: p.Grid(),
		Notes:   p.CountNotes(),
	}
	if link, err := share.EncodeURL(s.baseURL, share.Beat{Name: name, BPM: bpm, Pattern: p}); err == nil {
		resp.Link = link
	}
	return resp
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "beatgrid",
	})
}

// listInstruments godoc
// @Summary List the drum lanes
// @Tags info
// @Produce json
// @Router /api/v1/instruments [get]
func listInstruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instruments": converter.Lanes()})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns a list of supported file formats
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats":     []string{"midi", "wav", "json"},
		"conversions": converter.GetSupportedConversions(),
	})
}

// handleDaily godoc
// @Summary Daily puzzle beat
// @Description Returns today's beat, or the beat with the given number
// @Tags puzzle
// @Produce json
// @Param number query int false "Beat number"
// @Router /api/v1/daily [get]
func (s *Server) handleDaily(c *gin.Context) {
	n := daily.Number(s.now())
	if raw := c.Query("number"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "number must be a positive integer"})
			return
		}
		n = v
	}
	b := daily.Generate(n)
	c.JSON(http.StatusOK, s.beatResponse(b.Name(), b.Number, b.Pattern, b.BPM))
}

// handleChallenge godoc
// @Summary Challenge level beat
// @Tags puzzle
// @Produce json
// @Param level path int true "Level (1-50)"
// @Router /api/v1/challenge/{level} [get]
func (s *Server) handleChallenge(c *gin.Context) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level must be an integer"})
		return
	}
	b := daily.Challenge(level)
	c.JSON(http.StatusOK, s.beatResponse(fmt.Sprintf("Challenge Level %d", b.Number), b.Number, b.Pattern, b.BPM))
}

// handleExport godoc
// @Summary Export a beat
// @Description Renders the posted beat and returns it as a file download
// @Tags convert
// @Accept json
// @Produce application/octet-stream
// @Param format path string true "midi, wav or json"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/export/{format} [post]
func (s *Server) handleExport(c *gin.Context) {
	format := converter.ParseFormat(c.Param("format"))
	if format == converter.FormatUnknown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported format"})
		return
	}

	var req BeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, bpm, err := req.decode()
	if err != nil {
		badRequest(c, err)
		return
	}

	out, err := s.conv.Export(c.Request.Context(), converter.Beat{Name: req.Name, Pattern: p, BPM: bpm}, format)
	if err != nil {
		s.logger.Error("export failed", "format", format, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", out.Filename))
	c.Data(http.StatusOK, out.MIMEType, out.Data)
}

// handleImport godoc
// @Summary Import a beat
// @Description Upload a MIDI or JSON file and receive the beat it holds
// @Tags convert
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI or JSON file"
// @Failure 400 {object} map[string]string
// @Router /api/v1/import [post]
func (s *Server) handleImport(c *gin.Context) {
	// Get uploaded file
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if len(data) > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	b, err := s.conv.Import(data, converter.DetectFormat(header.Filename))
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.beatResponse(b.Name, 0, b.Pattern, b.BPM))
}

// handleShareEncode godoc
// @Summary Build a share link
// @Tags share
// @Accept json
// @Produce json
// @Router /api/v1/share [post]
func (s *Server) handleShareEncode(c *gin.Context) {
	var req BeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, bpm, err := req.decode()
	if err != nil {
		badRequest(c, err)
		return
	}

	b := share.Beat{Name: req.Name, BPM: bpm, Pattern: p}
	link, err := share.EncodeURL(s.baseURL, b)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	text, err := share.BeatText(b, link)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": link, "text": text})
}

// handleShareDecode godoc
// @Summary Open a share link
// @Description Decodes the beat query parameter, or a full link passed as link
// @Tags share
// @Produce json
// @Router /api/v1/share [get]
func (s *Server) handleShareDecode(c *gin.Context) {
	var (
		b   share.Beat
		err error
	)
	if link := c.Query("link"); link != "" {
		b, err = share.DecodeURL(link)
	} else {
		b, err = share.Decode(c.Query(share.QueryParam))
	}
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, s.beatResponse(b.Name, 0, b.Pattern, b.BPM))
}

// GradeRequest is the body of a grading call
type GradeRequest struct {
	Guess  string `json:"guess" binding:"required"`
	Target string `json:"target"`
	// Number grades against a daily beat when Target is empty
	Number int `json:"number"`
}

// handleGrade godoc
// @Summary Grade a guess
// @Tags puzzle
// @Accept json
// @Produce json
// @Router /api/v1/grade [post]
func (s *Server) handleGrade(c *gin.Context) {
	var req GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	guess, err := pattern.ParseBits(req.Guess)
	if err != nil {
		badRequest(c, err)
		return
	}

	var target pattern.Pattern
	switch {
	case req.Target != "":
		if target, err = pattern.ParseBits(req.Target); err != nil {
			badRequest(c, err)
			return
		}
	case req.Number > 0:
		target = daily.Generate(req.Number).Pattern
	default:
		target = daily.Today(s.now()).Pattern
	}

	attempt := pattern.Grade(guess, target)
	cells := make([][]string, pattern.Rows)
	for r := range cells {
		cells[r] = make([]string, pattern.Cols)
		for col := range cells[r] {
			cells[r][col] = attempt.Result[r][col].String()
		}
	}
	sum := share.Summarize(guess, target)
	c.JSON(http.StatusOK, gin.H{
		"solved":    attempt.Solved(),
		"correct":   sum.Correct,
		"incorrect": sum.Incorrect,
		"missing":   sum.Missing,
		"cells":     cells,
	})
}

func (s *Server) handleListBeats(c *gin.Context) {
	recs, err := s.repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	beats := make([]BeatResponse, 0, len(recs))
	for _, r := range recs {
		resp := s.beatResponse(r.Name, 0, r.Pattern, r.BPM)
		resp.Key = r.Key
		beats = append(beats, resp)
	}
	c.JSON(http.StatusOK, gin.H{"beats": beats})
}

func (s *Server) handleLoadBeat(c *gin.Context) {
	key := c.Param("key")
	rec, ok, err := s.repo.Load(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "beat not found"})
		return
	}
	resp := s.beatResponse(rec.Name, 0, rec.Pattern, rec.BPM)
	resp.Key = rec.Key
	c.JSON(http.StatusOK, resp)
}

// handleSaveBeat creates a beat on POST and overwrites the keyed one on PUT
func (s *Server) handleSaveBeat(c *gin.Context) {
	var req BeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, bpm, err := req.decode()
	if err != nil {
		badRequest(c, err)
		return
	}

	key := c.Param("key")
	status := http.StatusOK
	if key == "" {
		key = store.NewKey()
		status = http.StatusCreated
	}
	if err := s.repo.Save(c.Request.Context(), key, p, bpm, req.Name); err != nil {
		s.logger.Error("save failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := s.beatResponse(req.Name, 0, p, bpm)
	resp.Key = key
	c.JSON(status, resp)
}

func (s *Server) handleDeleteBeat(c *gin.Context) {
	if err := s.repo.Delete(c.Request.Context(), c.Param("key")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
