package web

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fernandomxwell/youtube-downloader/bpm"
	"github.com/fernandomxwell/youtube-downloader/job"
	"github.com/fernandomxwell/youtube-downloader/util"
)

// handleAnalyzeBPM accepts one uploaded audio file, decodes it to PCM and
// runs the tempo estimator. A track without a detectable beat answers with
// bpm 0 rather than a guess.
func (s *Server) handleAnalyzeBPM(c *gin.Context) {
	fh, err := c.FormFile("audiofile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No audio file uploaded."})
		return
	}

	j, err := job.New(s.uploadsDir())
	if err != nil {
		s.defaultError(c, err)
		return
	}
	defer j.Cleanup()

	audioPath := j.Path(util.SanitizeFilename(fh.Filename))
	if err := c.SaveUploadedFile(fh, audioPath); err != nil {
		s.defaultError(c, err)
		return
	}

	samples, sampleRate, err := bpm.DecodePCM(c.Request.Context(), s.tools, audioPath)
	if err != nil {
		log.Printf("[bpm] decode failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to analyze the audio file. It might be corrupted or unsupported.",
		})
		return
	}

	tempo, err := bpm.Estimate(samples, sampleRate)
	if errors.Is(err, bpm.ErrNoConfidentTempo) {
		tempo = 0
	}

	log.Printf("[bpm] %s: %d", fh.Filename, tempo)
	c.JSON(http.StatusOK, gin.H{"bpm": tempo})
}
