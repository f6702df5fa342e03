package provider

import (
	"context"
	"fmt"
	"net/url"

	"socialpub/internal/credential"
	"socialpub/internal/job"
	"socialpub/internal/library"
)

// graphAPIBase is a var so tests can point adapters at a fake Graph API.
var graphAPIBase = "https://graph.facebook.com/v18.0"

// Facebook publishes to the owner's connected Page using the stored page
// access token. Caption-only posts go to the feed; image media are posted as
// photos.
type Facebook struct {
	base
}

// NewFacebook creates the Facebook adapter.
func NewFacebook(creds credential.Store, lib library.Recorder) *Facebook {
	return &Facebook{base: newBase("facebook", creds, lib, clientConfig{RequestsPerSecond: 1, Burst: 2})}
}

type graphPostResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Publish posts the content to the connected Page.
func (f *Facebook) Publish(ctx context.Context, ownerID string, content job.Content) job.Outcome {
	tok, fail := f.token(ctx, ownerID)
	if fail != nil {
		return *fail
	}
	pageID := tok.AccountID
	if pageID == "" {
		return Failure(f.name, "facebook_page_not_selected", nil)
	}
	pageToken := tok.Extra["page_token"]
	if pageToken == "" {
		pageToken = tok.AccessToken
	}

	images := make([]job.MediaRef, 0, len(content.Media))
	for _, m := range content.Media {
		if isImage(m.ContentType, m.URL) {
			images = append(images, m)
		}
	}

	// Caption-only: one feed post.
	if len(images) == 0 {
		form := url.Values{}
		form.Set("message", content.Caption)
		form.Set("access_token", pageToken)

		var res graphPostResponse
		endpoint := fmt.Sprintf("%s/%s/feed", graphAPIBase, url.PathEscape(pageID))
		if err := f.client.postForm(ctx, endpoint, form, &res); err != nil {
			return Failure(f.name, "facebook_feed_post_failed", map[string]any{"error": err.Error()})
		}
		f.record(ctx, ownerID, res.ID, content)
		return Success(f.name, 1, map[string]any{"postId": res.ID})
	}

	// One photo post per image; the first carries the caption.
	posted := 0
	ids := make([]string, 0, len(images))
	for i, img := range images {
		form := url.Values{}
		form.Set("url", img.URL)
		form.Set("access_token", pageToken)
		if i == 0 {
			form.Set("caption", content.Caption)
		}

		var res graphPostResponse
		endpoint := fmt.Sprintf("%s/%s/photos", graphAPIBase, url.PathEscape(pageID))
		if err := f.client.postForm(ctx, endpoint, form, &res); err != nil {
			if posted == 0 {
				return Failure(f.name, "facebook_photo_post_failed", map[string]any{"error": err.Error(), "posted": posted})
			}
			// Partial success within the provider is still a success outcome;
			// the per-item results go in details.
			break
		}
		posted++
		ids = append(ids, res.ID)
	}

	f.record(ctx, ownerID, firstOr(ids, ""), content)
	return Success(f.name, posted, map[string]any{"photoIds": ids})
}

func firstOr(s []string, def string) string {
	if len(s) > 0 {
		return s[0]
	}
	return def
}
