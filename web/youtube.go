package web

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kkdai/youtube/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/fernandomxwell/youtube-downloader/job"
	"github.com/fernandomxwell/youtube-downloader/store"
	"github.com/fernandomxwell/youtube-downloader/util"
)

type videoInfoRequest struct {
	URL string `json:"url" binding:"required,url"`
}

func (s *Server) handleVideoInfo(c *gin.Context) {
	var req videoInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusUnprocessableEntity, "Validation failed", gin.H{"url": "a valid url is required"})
		return
	}

	video, err := s.yt.VideoInfo(c.Request.Context(), req.URL)
	if err != nil {
		s.defaultError(c, err)
		return
	}

	// Formats go out as reported by the stream-info collaborator; clients
	// pick itags from this list for prepare-download.
	thumbnail := lo.MaxBy(video.Thumbnails, func(a, b youtube.Thumbnail) bool {
		return a.Width > b.Width
	})
	s.success(c, gin.H{
		"title":        video.Title,
		"formats":      video.Formats,
		"thumbnailUrl": thumbnail.URL,
	})
}

type prepareDownloadRequest struct {
	URL       string `json:"url" binding:"required,url"`
	VideoItag int    `json:"videoItag"`
	AudioItag int    `json:"audioItag" binding:"required"`
	Type      string `json:"type" binding:"required,oneof=mp3 mp4"`
	Title     string `json:"title"`
}

// handlePrepareDownload fetches the requested streams, assembles the final
// file under the prepared area and registers it for one-shot retrieval.
func (s *Server) handlePrepareDownload(c *gin.Context) {
	var req prepareDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusUnprocessableEntity, "Validation failed", gin.H{"request": err.Error()})
		return
	}
	if req.Type == "mp4" && req.VideoItag == 0 {
		s.fail(c, http.StatusUnprocessableEntity, "Validation failed", gin.H{"videoItag": "required for mp4"})
		return
	}

	ctx := c.Request.Context()
	video, err := s.yt.VideoInfo(ctx, req.URL)
	if err != nil {
		s.defaultError(c, err)
		return
	}

	// Intermediate stream files live in a throwaway job dir; only the
	// assembled output survives under the prepared area.
	j, err := job.New(s.uploadsDir())
	if err != nil {
		s.defaultError(c, err)
		return
	}
	defer j.Cleanup()

	title := req.Title
	if title == "" {
		title = video.Title
	}
	token := uuid.NewString()
	outName := token + "." + req.Type
	stagePath := j.Path(outName)

	switch req.Type {
	case "mp3":
		rawPath := j.Path("audio_stream")
		if err := s.yt.DownloadFormat(ctx, video, req.AudioItag, rawPath); err != nil {
			s.defaultError(c, err)
			return
		}
		if err := s.tools.TranscodeMP3(ctx, rawPath, stagePath); err != nil {
			s.defaultError(c, err)
			return
		}
	case "mp4":
		videoPath := j.Path("video_stream.mp4")
		audioPath := j.Path("audio_stream.m4a")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return s.yt.DownloadFormat(gctx, video, req.VideoItag, videoPath) })
		g.Go(func() error { return s.yt.DownloadFormat(gctx, video, req.AudioItag, audioPath) })
		if err := g.Wait(); err != nil {
			s.defaultError(c, err)
			return
		}
		if err := s.tools.MergeAV(ctx, videoPath, audioPath, stagePath); err != nil {
			s.defaultError(c, err)
			return
		}
	}

	// The assembled file enters the prepared area only once it is fully
	// built; failures above die with the job dir, so the purge sweep never
	// has to account for files without a registry row.
	if err := os.MkdirAll(s.preparedDir(), 0o755); err != nil {
		s.defaultError(c, err)
		return
	}
	outPath := filepath.Join(s.preparedDir(), outName)
	if err := os.Rename(stagePath, outPath); err != nil {
		s.defaultError(c, err)
		return
	}

	err = s.store.Put(store.PreparedDownload{
		Token:     token,
		Filename:  util.SanitizeFilename(title) + "." + req.Type,
		Path:      outPath,
		Title:     title,
		MediaType: req.Type,
		CreatedAt: time.Now(),
	})
	if err != nil {
		os.Remove(outPath)
		s.defaultError(c, err)
		return
	}

	s.success(c, gin.H{
		"downloadUrl": "/api/youtube-downloader/get-file/" + token,
	})
}

// handleGetFile streams a prepared file as an attachment and then removes
// it; every prepared download can be fetched once.
func (s *Server) handleGetFile(c *gin.Context) {
	token := c.Param("filename")

	d, err := s.store.Get(token)
	if errors.Is(err, store.ErrNotFound) {
		s.fail(c, http.StatusNotFound, "File not found", nil)
		return
	}
	if err != nil {
		s.defaultError(c, err)
		return
	}
	if _, err := os.Stat(d.Path); err != nil {
		// Row without a file: clean the registry up and report missing.
		_ = s.store.Delete(token)
		s.fail(c, http.StatusNotFound, "File not found", nil)
		return
	}

	c.FileAttachment(d.Path, d.Filename)

	// Transfer handed off; the file goes away regardless of how it ended.
	if err := s.store.Delete(token); err != nil {
		_ = c.Error(err)
	}
}
