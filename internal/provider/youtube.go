package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"socialpub/internal/credential"
	"socialpub/internal/job"
	"socialpub/internal/library"
)

var youtubeUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos?part=snippet,status&uploadType=multipart"

// maxYouTubeUpload bounds how much video we pull into memory for an upload.
const maxYouTubeUpload = 256 << 20 // 256 MB

// YouTube uploads the first video media as an unlisted video with the
// caption as its title.
type YouTube struct {
	base
}

// NewYouTube creates the YouTube adapter.
func NewYouTube(creds credential.Store, lib library.Recorder) *YouTube {
	return &YouTube{base: newBase("youtube", creds, lib, clientConfig{RequestsPerSecond: 3, Burst: 3, Timeout: 2 * time.Minute})}
}

type youtubeSnippet struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type youtubeStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

type youtubeUploadMeta struct {
	Snippet youtubeSnippet `json:"snippet"`
	Status  youtubeStatus  `json:"status"`
}

type youtubeUploadResponse struct {
	ID string `json:"id"`
}

// Publish fetches the video bytes from the media URL and uploads them.
func (y *YouTube) Publish(ctx context.Context, ownerID string, content job.Content) job.Outcome {
	tok, fail := y.token(ctx, ownerID)
	if fail != nil {
		return *fail
	}

	var video *job.MediaRef
	for i := range content.Media {
		if isVideo(content.Media[i].ContentType, content.Media[i].URL) {
			video = &content.Media[i]
			break
		}
	}
	if video == nil {
		return Failure(y.name, "youtube_requires_video", nil)
	}

	videoBytes, contentType, err := y.fetchVideo(ctx, video.URL)
	if err != nil {
		return Failure(y.name, "youtube_media_fetch_failed", map[string]any{"error": err.Error()})
	}

	meta := youtubeUploadMeta{
		Snippet: youtubeSnippet{Title: truncate(content.Caption, 100), Description: content.Caption},
		Status:  youtubeStatus{PrivacyStatus: "unlisted"},
	}

	body, boundary, err := buildMultipart(meta, videoBytes, contentType)
	if err != nil {
		return Failure(y.name, "youtube_upload_failed", map[string]any{"error": err.Error()})
	}

	mp := fmt.Sprintf("multipart/related; boundary=%s", boundary)
	var res youtubeUploadResponse
	if err := y.client.do(ctx, http.MethodPost, youtubeUploadURL, mp, tok.AccessToken, body, &res); err != nil {
		return Failure(y.name, "youtube_upload_failed", map[string]any{"error": err.Error()})
	}

	y.record(ctx, ownerID, res.ID, content)
	return Success(y.name, 1, map[string]any{"videoId": res.ID})
}

func (y *YouTube) fetchVideo(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := y.client.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media fetch returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxYouTubeUpload))
	if err != nil {
		return nil, "", err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "video/mp4"
	}
	return data, ct, nil
}

// buildMultipart assembles the two-part multipart/related upload body:
// JSON metadata first, then the raw video.
func buildMultipart(meta youtubeUploadMeta, video []byte, videoType string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, "", err
	}

	videoHeader := textproto.MIMEHeader{}
	videoHeader.Set("Content-Type", videoType)
	videoPart, err := w.CreatePart(videoHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := videoPart.Write(video); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.Boundary(), nil
}
