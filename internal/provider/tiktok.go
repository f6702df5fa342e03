package provider

import (
	"context"

	"socialpub/internal/credential"
	"socialpub/internal/job"
	"socialpub/internal/library"
)

var tiktokInitURL = "https://open.tiktokapis.com/v2/post/publish/inbox/video/init/"

// TikTok sends the first video media to the owner's TikTok inbox via the
// pull-from-URL upload flow. The user finalizes the post in the TikTok app.
type TikTok struct {
	base
}

// NewTikTok creates the TikTok adapter.
func NewTikTok(creds credential.Store, lib library.Recorder) *TikTok {
	return &TikTok{base: newBase("tiktok", creds, lib, clientConfig{RequestsPerSecond: 1, Burst: 2})}
}

type tiktokInitRequest struct {
	SourceInfo tiktokSourceInfo `json:"source_info"`
}

type tiktokSourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type tiktokInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Publish initiates a pull-from-URL video upload.
func (t *TikTok) Publish(ctx context.Context, ownerID string, content job.Content) job.Outcome {
	tok, fail := t.token(ctx, ownerID)
	if fail != nil {
		return *fail
	}

	videoURL := ""
	for _, m := range content.Media {
		if isVideo(m.ContentType, m.URL) {
			videoURL = m.URL
			break
		}
	}
	if videoURL == "" {
		return Failure(t.name, "tiktok_requires_video", nil)
	}

	req := tiktokInitRequest{
		SourceInfo: tiktokSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: videoURL,
		},
	}

	var res tiktokInitResponse
	if err := t.client.postJSONAuth(ctx, tiktokInitURL, tok.AccessToken, req, &res); err != nil {
		return Failure(t.name, "tiktok_init_failed", map[string]any{"error": err.Error()})
	}
	if res.Error.Code != "" && res.Error.Code != "ok" {
		return Failure(t.name, "tiktok_init_rejected", map[string]any{
			"code":    res.Error.Code,
			"message": res.Error.Message,
		})
	}

	t.record(ctx, ownerID, res.Data.PublishID, content)
	return Success(t.name, 1, map[string]any{"publishId": res.Data.PublishID})
}
