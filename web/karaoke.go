package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fernandomxwell/youtube-downloader/job"
	"github.com/fernandomxwell/youtube-downloader/karaoke"
)

// handleGenerateVideo runs the karaoke pipeline for one request. The job
// directory holding every uploaded and intermediate file is removed after
// the response is written, success or not.
func (s *Server) handleGenerateVideo(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.String(http.StatusBadRequest, "invalid multipart form: %v", err)
		return
	}

	imageFiles := form.File["images"]
	if len(imageFiles) == 0 {
		c.String(http.StatusBadRequest, "no images uploaded (field must be 'images')")
		return
	}
	audioFiles := form.File["audio"]
	if len(audioFiles) == 0 {
		c.String(http.StatusBadRequest, "no audio uploaded (field must be 'audio')")
		return
	}

	var lines []karaoke.LyricLine
	if err := json.Unmarshal([]byte(c.PostForm("lyrics")), &lines); err != nil {
		c.String(http.StatusBadRequest, "lyrics must be a JSON array of {text, startTime, endTime}")
		return
	}
	// An omitted duration is filled in from the audio itself after the
	// upload lands on disk; a duration the client does supply must parse.
	var duration float64
	if field := c.PostForm("duration"); field != "" {
		duration, err = strconv.ParseFloat(field, 64)
		if err != nil || duration <= 0 {
			c.String(http.StatusBadRequest, "duration must be a positive number of seconds")
			return
		}
	}

	j, err := job.New(s.uploadsDir())
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to set up working directory")
		return
	}
	defer j.Cleanup()

	// Save uploads into the job dir, keeping the submitted image order;
	// clip concatenation follows this order.
	imagePaths := make([]string, len(imageFiles))
	for i, fh := range imageFiles {
		imagePaths[i] = j.Path(fmt.Sprintf("image_%d%s", i, filepath.Ext(fh.Filename)))
		if err := c.SaveUploadedFile(fh, imagePaths[i]); err != nil {
			c.String(http.StatusInternalServerError, "failed to store uploaded image")
			return
		}
	}
	audioPath := j.Path("audio" + filepath.Ext(audioFiles[0].Filename))
	if err := c.SaveUploadedFile(audioFiles[0], audioPath); err != nil {
		c.String(http.StatusInternalServerError, "failed to store uploaded audio")
		return
	}

	if duration == 0 {
		duration, err = s.tools.ProbeDuration(c.Request.Context(), audioPath)
		if err != nil || duration <= 0 {
			c.String(http.StatusBadRequest, "could not read a duration from the audio; pass a duration field")
			return
		}
	}

	outputPath, err := s.pipeline.Generate(c.Request.Context(), j, imagePaths, audioPath, lines, duration)
	if err != nil {
		log.Printf("[karaoke] job %s failed: %v", j.ID, err)
		c.String(http.StatusInternalServerError, "failed to generate karaoke video")
		return
	}

	c.FileAttachment(outputPath, "karaoke.mp4")
}
