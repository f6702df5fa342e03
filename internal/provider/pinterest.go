package provider

import (
	"context"

	"socialpub/internal/credential"
	"socialpub/internal/job"
	"socialpub/internal/library"
)

var pinterestAPIBase = "https://api.pinterest.com/v5"

// Pinterest creates one pin per image on the owner's selected board.
type Pinterest struct {
	base
}

// NewPinterest creates the Pinterest adapter.
func NewPinterest(creds credential.Store, lib library.Recorder) *Pinterest {
	return &Pinterest{base: newBase("pinterest", creds, lib, clientConfig{RequestsPerSecond: 1, Burst: 2})}
}

type pinCreateRequest struct {
	BoardID     string         `json:"board_id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	MediaSource pinMediaSource `json:"media_source"`
}

type pinMediaSource struct {
	SourceType string `json:"source_type"`
	URL        string `json:"url"`
}

type pinCreateResponse struct {
	ID string `json:"id"`
}

// Publish creates pins for the image media.
func (p *Pinterest) Publish(ctx context.Context, ownerID string, content job.Content) job.Outcome {
	tok, fail := p.token(ctx, ownerID)
	if fail != nil {
		return *fail
	}
	boardID := tok.Extra["board_id"]
	if boardID == "" {
		return Failure(p.name, "pinterest_board_not_selected", nil)
	}

	images := make([]job.MediaRef, 0, len(content.Media))
	for _, m := range content.Media {
		if isImage(m.ContentType, m.URL) {
			images = append(images, m)
		}
	}
	if len(images) == 0 {
		return Failure(p.name, "pinterest_requires_image", nil)
	}

	posted := 0
	pinIDs := make([]string, 0, len(images))
	for _, img := range images {
		req := pinCreateRequest{
			BoardID:     boardID,
			Description: content.Caption,
			MediaSource: pinMediaSource{
				SourceType: "image_url",
				URL:        img.URL,
			},
		}

		var res pinCreateResponse
		if err := p.client.postJSONAuth(ctx, pinterestAPIBase+"/pins", tok.AccessToken, req, &res); err != nil {
			if posted == 0 {
				return Failure(p.name, "pinterest_pin_failed", map[string]any{"error": err.Error()})
			}
			break
		}
		posted++
		pinIDs = append(pinIDs, res.ID)
	}

	p.record(ctx, ownerID, firstOr(pinIDs, ""), content)
	return Success(p.name, posted, map[string]any{"pinIds": pinIDs})
}
