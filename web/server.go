// Package web exposes the media tools over HTTP.
package web

import (
	"context"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/kkdai/youtube/v2"

	"github.com/fernandomxwell/youtube-downloader/config"
	"github.com/fernandomxwell/youtube-downloader/karaoke"
	"github.com/fernandomxwell/youtube-downloader/media"
	"github.com/fernandomxwell/youtube-downloader/store"
)

// StreamSource resolves a watch URL to its metadata and fetches individual
// streams. *media.YouTube is the production implementation.
type StreamSource interface {
	VideoInfo(ctx context.Context, url string) (*youtube.Video, error)
	DownloadFormat(ctx context.Context, video *youtube.Video, itag int, dst string) error
}

type Server struct {
	cfg      config.Config
	tools    media.Tools
	yt       StreamSource
	store    *store.Store
	pipeline *karaoke.Pipeline
}

func New(cfg config.Config, tools media.Tools, yt StreamSource, st *store.Store) *Server {
	return &Server{
		cfg:   cfg,
		tools: tools,
		yt:    yt,
		store: st,
		pipeline: &karaoke.Pipeline{
			Tools:      tools,
			MaxWorkers: cfg.MaxWorkers,
		},
	}
}

// uploadsDir is where per-request job directories are created.
func (s *Server) uploadsDir() string {
	return filepath.Join(s.cfg.StorageDir, "uploads")
}

// preparedDir holds files between prepare-download and get-file.
func (s *Server) preparedDir() string {
	return filepath.Join(s.cfg.StorageDir, "prepared")
}

func (s *Server) Router() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	api := r.Group("/api")

	bpmAPI := api.Group("/bpm-detector")
	bpmAPI.POST("/analyze-bpm", s.handleAnalyzeBPM)

	ytAPI := api.Group("/youtube-downloader")
	ytAPI.POST("/video-info", s.handleVideoInfo)
	ytAPI.POST("/prepare-download", s.handlePrepareDownload)
	ytAPI.GET("/get-file/:filename", s.handleGetFile)

	karaokeAPI := api.Group("/karaoke-maker")
	karaokeAPI.POST("/generate-video", s.handleGenerateVideo)

	return r
}
