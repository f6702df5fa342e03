package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"socialpub/internal/credential"
	"socialpub/internal/job"
	"socialpub/internal/library"
)

// Instagram publishes image posts to the connected IG Business account via
// the Graph API container flow: create a media container per image, wait for
// it to finish processing, then publish.
type Instagram struct {
	base
	pollInterval time.Duration
	pollAttempts int
}

// NewInstagram creates the Instagram adapter.
func NewInstagram(creds credential.Store, lib library.Recorder) *Instagram {
	return &Instagram{
		base:         newBase("instagram", creds, lib, clientConfig{RequestsPerSecond: 1, Burst: 2}),
		pollInterval: time.Second,
		pollAttempts: 10,
	}
}

type igContainerResponse struct {
	ID string `json:"id"`
}

type igStatusResponse struct {
	StatusCode string `json:"status_code"`
}

// Publish creates and publishes a media container (carousel when more than
// one image).
func (ig *Instagram) Publish(ctx context.Context, ownerID string, content job.Content) job.Outcome {
	tok, fail := ig.token(ctx, ownerID)
	if fail != nil {
		return *fail
	}
	igID := tok.AccountID
	if igID == "" {
		return Failure(ig.name, "instagram_account_not_connected", nil)
	}

	images := make([]job.MediaRef, 0, len(content.Media))
	for _, m := range content.Media {
		if isImage(m.ContentType, m.URL) {
			images = append(images, m)
		}
	}
	if len(images) == 0 {
		return Failure(ig.name, "instagram_requires_image", nil)
	}

	carousel := len(images) > 1
	details := map[string]any{}

	// Child (or single) containers.
	containerIDs := make([]string, 0, len(images))
	for _, img := range images {
		form := url.Values{}
		form.Set("image_url", img.URL)
		form.Set("access_token", tok.AccessToken)
		if carousel {
			form.Set("is_carousel_item", "true")
		} else {
			form.Set("caption", content.Caption)
		}

		var res igContainerResponse
		endpoint := fmt.Sprintf("%s/%s/media", graphAPIBase, url.PathEscape(igID))
		if err := ig.client.postForm(ctx, endpoint, form, &res); err != nil {
			return Failure(ig.name, "instagram_container_failed", map[string]any{"error": err.Error()})
		}
		if res.ID == "" {
			return Failure(ig.name, "instagram_missing_container_id", nil)
		}
		containerIDs = append(containerIDs, res.ID)

		if status, err := ig.waitForContainer(ctx, res.ID, tok.AccessToken); err != nil {
			return Failure(ig.name, "container_timeout", map[string]any{"containerId": res.ID, "status": status})
		}
	}
	details["containerIds"] = containerIDs

	creationID := containerIDs[0]
	if carousel {
		form := url.Values{}
		form.Set("media_type", "CAROUSEL")
		form.Set("caption", content.Caption)
		form.Set("children", strings.Join(containerIDs, ","))
		form.Set("access_token", tok.AccessToken)

		var res igContainerResponse
		endpoint := fmt.Sprintf("%s/%s/media", graphAPIBase, url.PathEscape(igID))
		if err := ig.client.postForm(ctx, endpoint, form, &res); err != nil {
			return Failure(ig.name, "instagram_carousel_failed", map[string]any{"error": err.Error()})
		}
		if res.ID == "" {
			return Failure(ig.name, "instagram_missing_creation_id", details)
		}
		creationID = res.ID

		if status, err := ig.waitForContainer(ctx, creationID, tok.AccessToken); err != nil {
			return Failure(ig.name, "container_timeout", map[string]any{"containerId": creationID, "status": status})
		}
	}

	form := url.Values{}
	form.Set("creation_id", creationID)
	form.Set("access_token", tok.AccessToken)

	var res igContainerResponse
	endpoint := fmt.Sprintf("%s/%s/media_publish", graphAPIBase, url.PathEscape(igID))
	if err := ig.client.postForm(ctx, endpoint, form, &res); err != nil {
		return Failure(ig.name, "instagram_publish_failed", map[string]any{"error": err.Error()})
	}
	details["mediaId"] = res.ID

	ig.record(ctx, ownerID, res.ID, content)
	return Success(ig.name, len(images), details)
}

// waitForContainer polls the container until FINISHED. Publishing an
// unfinished container fails remotely, so the wait is mandatory.
func (ig *Instagram) waitForContainer(ctx context.Context, containerID, accessToken string) (string, error) {
	last := ""
	for attempt := 0; attempt < ig.pollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(ig.pollInterval):
			}
		}

		var res igStatusResponse
		endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
			graphAPIBase, url.PathEscape(containerID), url.QueryEscape(accessToken))
		if err := ig.client.getJSON(ctx, endpoint, &res); err != nil {
			return last, err
		}
		last = res.StatusCode
		switch last {
		case "FINISHED":
			return last, nil
		case "ERROR", "EXPIRED":
			return last, fmt.Errorf("instagram_container_%s", strings.ToLower(last))
		}
	}
	return last, fmt.Errorf("instagram_container_not_ready")
}
