package media

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kkdai/youtube/v2"
)

// YouTube wraps the stream-info collaborator. Format metadata is passed
// through to clients untouched; only stream fetching lives here.
type YouTube struct {
	client youtube.Client
}

func NewYouTube() *YouTube {
	return &YouTube{client: youtube.Client{}}
}

// VideoInfo resolves a watch URL to its metadata and available formats.
func (y *YouTube) VideoInfo(ctx context.Context, url string) (*youtube.Video, error) {
	video, err := y.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("get video info: %w", err)
	}
	return video, nil
}

// DownloadFormat streams the format identified by itag into dst.
func (y *YouTube) DownloadFormat(ctx context.Context, video *youtube.Video, itag int, dst string) error {
	formats := video.Formats.Itag(itag)
	if len(formats) == 0 {
		return fmt.Errorf("itag %d not available for %s", itag, video.ID)
	}

	stream, _, err := y.client.GetStreamContext(ctx, video, &formats[0])
	if err != nil {
		return fmt.Errorf("get stream (itag %d): %w", itag, err)
	}
	defer stream.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, stream); err != nil {
		return fmt.Errorf("download stream (itag %d): %w", itag, err)
	}
	return nil
}
