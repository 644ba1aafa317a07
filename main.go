package main

import (
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/fernandomxwell/youtube-downloader/config"
	"github.com/fernandomxwell/youtube-downloader/media"
	"github.com/fernandomxwell/youtube-downloader/store"
	"github.com/fernandomxwell/youtube-downloader/web"
)

func main() {
	cfg := config.Load()

	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		log.Fatalf("ffmpeg not found (%s): %v", cfg.FFmpegPath, err)
	}
	if _, err := exec.LookPath(cfg.FFprobePath); err != nil {
		log.Fatalf("ffprobe not found (%s): %v", cfg.FFprobePath, err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("create storage dir: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open download store: %v", err)
	}
	defer st.Close()

	tools := media.Tools{
		Runner:  media.ExecRunner{Timeout: cfg.ToolTimeout},
		FFmpeg:  cfg.FFmpegPath,
		FFprobe: cfg.FFprobePath,
	}

	server := web.New(cfg, tools, media.NewYouTube(), st)

	// Sweep prepared downloads nobody picked up, at startup and then on a
	// timer, so crashes can't leak files into the temp area forever.
	purge := func() {
		if n, err := st.PurgeOlderThan(cfg.PreparedTTL); err != nil {
			log.Printf("[purge] failed: %v", err)
		} else if n > 0 {
			log.Printf("[purge] removed %d stale downloads", n)
		}
	}
	purge()
	go func() {
		for range time.Tick(cfg.PreparedTTL / 2) {
			purge()
		}
	}()

	log.Printf("Server starting on port %s (debug=%v)", cfg.Port, cfg.Debug)
	if err := server.Router().Run(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
