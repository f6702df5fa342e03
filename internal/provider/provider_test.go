package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"socialpub/internal/credential"
	"socialpub/internal/job"
	"socialpub/internal/library"
)

type fakePublisher struct {
	name string
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) Publish(ctx context.Context, ownerID string, content job.Content) job.Outcome {
	return Success(f.name, 1, nil)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakePublisher{name: "zeta"})
	r.Register(&fakePublisher{name: "alpha"})

	if _, ok := r.Get("missing"); ok {
		t.Error("Get returned ok for unregistered provider")
	}
	p, ok := r.Get("alpha")
	if !ok || p.Name() != "alpha" {
		t.Errorf("Get(alpha) = %v, %v", p, ok)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names() = %v, expected sorted [alpha zeta]", names)
	}
}

func TestDefaultRegistryNames(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(credential.NewMemoryStore(), library.NewMemoryRecorder())
	want := []string{"facebook", "instagram", "pinterest", "threads", "tiktok", "youtube"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, expected %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, expected %s", i, got[i], want[i])
		}
	}
}

func TestThreadsNotSupported(t *testing.T) {
	t.Parallel()

	out := NewThreads().Publish(context.Background(), "user1", job.Content{Caption: "hello"})
	if out.OK {
		t.Error("expected OK=false")
	}
	if out.Provider != "threads" || out.Error != "not_supported_yet" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestAdaptersNotConnected(t *testing.T) {
	t.Parallel()

	creds := credential.NewMemoryStore()
	lib := library.NewMemoryRecorder()

	adapters := []Publisher{
		NewFacebook(creds, lib),
		NewInstagram(creds, lib),
		NewTikTok(creds, lib),
		NewYouTube(creds, lib),
		NewPinterest(creds, lib),
	}
	for _, a := range adapters {
		t.Run(a.Name(), func(t *testing.T) {
			out := a.Publish(context.Background(), "unknown-user", job.Content{Caption: "hi"})
			if out.OK {
				t.Error("expected OK=false")
			}
			if out.Error != "not_connected" {
				t.Errorf("error = %q, expected not_connected", out.Error)
			}
		})
	}
}

// overrideBase points an adapter's API base at a test server for the
// duration of the test. Tests that use it must not run in parallel.
func overrideBase(t *testing.T, target *string, replacement string) {
	t.Helper()
	prev := *target
	*target = replacement
	t.Cleanup(func() { *target = prev })
}

func TestFacebookCaptionOnly(t *testing.T) {
	var gotPath string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		w.Write([]byte(`{"id":"post_1"}`))
	}))
	defer srv.Close()
	overrideBase(t, &graphAPIBase, srv.URL)

	creds := credential.NewMemoryStore()
	creds.Put("user1", "facebook", &credential.Token{
		AccessToken: "user-token",
		AccountID:   "page1",
		Extra:       map[string]string{"page_token": "page-token"},
	})
	lib := library.NewMemoryRecorder()

	out := NewFacebook(creds, lib).Publish(context.Background(), "user1", job.Content{Caption: "hello world"})
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Posted == nil || *out.Posted != 1 {
		t.Errorf("posted = %v, expected 1", out.Posted)
	}
	if gotPath != "/page1/feed" {
		t.Errorf("path = %s, expected /page1/feed", gotPath)
	}
	if gotForm.Get("message") != "hello world" {
		t.Errorf("message = %q", gotForm.Get("message"))
	}
	if gotForm.Get("access_token") != "page-token" {
		t.Errorf("access_token = %q, expected the page token", gotForm.Get("access_token"))
	}

	items := lib.Items()
	if len(items) != 1 || items[0].RemoteID != "post_1" || items[0].Provider != "facebook" {
		t.Errorf("library items = %+v", items)
	}
}

func TestFacebookPhotos(t *testing.T) {
	var captions []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page1/photos" {
			t.Errorf("path = %s, expected /page1/photos", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		captions = append(captions, form.Get("caption"))
		w.Write([]byte(`{"id":"photo_1"}`))
	}))
	defer srv.Close()
	overrideBase(t, &graphAPIBase, srv.URL)

	creds := credential.NewMemoryStore()
	creds.Put("user1", "facebook", &credential.Token{AccessToken: "tok", AccountID: "page1"})

	out := NewFacebook(creds, library.NewMemoryRecorder()).Publish(context.Background(), "user1", job.Content{
		Caption: "two pics",
		Media: []job.MediaRef{
			{URL: "https://cdn.example.com/a.jpg", ContentType: "image/jpeg"},
			{URL: "https://cdn.example.com/b.jpg", ContentType: "image/jpeg"},
		},
	})
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Posted == nil || *out.Posted != 2 {
		t.Errorf("posted = %v, expected 2", out.Posted)
	}
	if len(captions) != 2 || captions[0] != "two pics" || captions[1] != "" {
		t.Errorf("captions = %v, expected only the first post to carry the caption", captions)
	}
}

func TestFacebookPageNotSelected(t *testing.T) {
	t.Parallel()

	creds := credential.NewMemoryStore()
	creds.Put("user1", "facebook", &credential.Token{AccessToken: "tok"})

	out := NewFacebook(creds, library.NewMemoryRecorder()).Publish(context.Background(), "user1", job.Content{Caption: "hi"})
	if out.OK || out.Error != "facebook_page_not_selected" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestInstagramSingleImage(t *testing.T) {
	t.Setenv("PROVIDER_INSTAGRAM_RPS", "1000")

	var publishedCreationID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/ig1/media":
			w.Write([]byte(`{"id":"container_1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/container_1":
			w.Write([]byte(`{"status_code":"FINISHED"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/ig1/media_publish":
			body, _ := io.ReadAll(r.Body)
			form, _ := url.ParseQuery(string(body))
			publishedCreationID = form.Get("creation_id")
			w.Write([]byte(`{"id":"media_1"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	overrideBase(t, &graphAPIBase, srv.URL)

	creds := credential.NewMemoryStore()
	creds.Put("user1", "instagram", &credential.Token{AccessToken: "tok", AccountID: "ig1"})
	lib := library.NewMemoryRecorder()

	ig := NewInstagram(creds, lib)
	ig.pollInterval = time.Millisecond

	out := ig.Publish(context.Background(), "user1", job.Content{
		Caption: "one pic",
		Media:   []job.MediaRef{{URL: "https://cdn.example.com/a.jpg", ContentType: "image/jpeg"}},
	})
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if publishedCreationID != "container_1" {
		t.Errorf("creation_id = %s, expected container_1", publishedCreationID)
	}
	if out.Details["mediaId"] != "media_1" {
		t.Errorf("details = %v", out.Details)
	}
	if items := lib.Items(); len(items) != 1 || items[0].RemoteID != "media_1" {
		t.Errorf("library items = %+v", items)
	}
}

func TestInstagramContainerTimeout(t *testing.T) {
	t.Setenv("PROVIDER_INSTAGRAM_RPS", "1000")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
			return
		}
		w.Write([]byte(`{"id":"container_1"}`))
	}))
	defer srv.Close()
	overrideBase(t, &graphAPIBase, srv.URL)

	creds := credential.NewMemoryStore()
	creds.Put("user1", "instagram", &credential.Token{AccessToken: "tok", AccountID: "ig1"})

	ig := NewInstagram(creds, library.NewMemoryRecorder())
	ig.pollInterval = time.Millisecond
	ig.pollAttempts = 3

	out := ig.Publish(context.Background(), "user1", job.Content{
		Caption: "stuck",
		Media:   []job.MediaRef{{URL: "https://cdn.example.com/a.jpg", ContentType: "image/jpeg"}},
	})
	if out.OK || out.Error != "container_timeout" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestInstagramRequiresImage(t *testing.T) {
	t.Parallel()

	creds := credential.NewMemoryStore()
	creds.Put("user1", "instagram", &credential.Token{AccessToken: "tok", AccountID: "ig1"})

	out := NewInstagram(creds, library.NewMemoryRecorder()).Publish(context.Background(), "user1", job.Content{
		Caption: "video only",
		Media:   []job.MediaRef{{URL: "https://cdn.example.com/a.mp4", ContentType: "video/mp4"}},
	})
	if out.OK || out.Error != "instagram_requires_image" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestTikTokRequiresVideo(t *testing.T) {
	t.Parallel()

	creds := credential.NewMemoryStore()
	creds.Put("user1", "tiktok", &credential.Token{AccessToken: "tok"})

	out := NewTikTok(creds, library.NewMemoryRecorder()).Publish(context.Background(), "user1", job.Content{
		Caption: "no video",
		Media:   []job.MediaRef{{URL: "https://cdn.example.com/a.jpg", ContentType: "image/jpeg"}},
	})
	if out.OK || out.Error != "tiktok_requires_video" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestTikTokInit(t *testing.T) {
	var gotAuth string
	var gotReq tiktokInitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"data":{"publish_id":"pub_abc"},"error":{"code":"ok"}}`))
	}))
	defer srv.Close()
	overrideBase(t, &tiktokInitURL, srv.URL)

	creds := credential.NewMemoryStore()
	creds.Put("user1", "tiktok", &credential.Token{AccessToken: "tt-token"})
	lib := library.NewMemoryRecorder()

	out := NewTikTok(creds, lib).Publish(context.Background(), "user1", job.Content{
		Caption: "clip",
		Media:   []job.MediaRef{{URL: "https://cdn.example.com/clip.mp4", ContentType: "video/mp4"}},
	})
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if gotAuth != "Bearer tt-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.SourceInfo.Source != "PULL_FROM_URL" || gotReq.SourceInfo.VideoURL != "https://cdn.example.com/clip.mp4" {
		t.Errorf("request = %+v", gotReq)
	}
	if out.Details["publishId"] != "pub_abc" {
		t.Errorf("details = %v", out.Details)
	}
}

func TestTikTokInitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":"spam_risk_too_many_posts","message":"try later"}}`))
	}))
	defer srv.Close()
	overrideBase(t, &tiktokInitURL, srv.URL)

	creds := credential.NewMemoryStore()
	creds.Put("user1", "tiktok", &credential.Token{AccessToken: "tok"})

	out := NewTikTok(creds, library.NewMemoryRecorder()).Publish(context.Background(), "user1", job.Content{
		Media: []job.MediaRef{{URL: "https://cdn.example.com/clip.mp4", ContentType: "video/mp4"}},
	})
	if out.OK || out.Error != "tiktok_init_rejected" {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if out.Details["code"] != "spam_risk_too_many_posts" {
		t.Errorf("details = %v", out.Details)
	}
}

func TestPinterestBoardNotSelected(t *testing.T) {
	t.Parallel()

	creds := credential.NewMemoryStore()
	creds.Put("user1", "pinterest", &credential.Token{AccessToken: "tok"})

	out := NewPinterest(creds, library.NewMemoryRecorder()).Publish(context.Background(), "user1", job.Content{
		Caption: "pin me",
		Media:   []job.MediaRef{{URL: "https://cdn.example.com/a.jpg", ContentType: "image/jpeg"}},
	})
	if out.OK || out.Error != "pinterest_board_not_selected" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestPinterestPins(t *testing.T) {
	var reqs []pinCreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pins" {
			t.Errorf("path = %s, expected /pins", r.URL.Path)
		}
		var req pinCreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		reqs = append(reqs, req)
		w.Write([]byte(`{"id":"pin_1"}`))
	}))
	defer srv.Close()
	overrideBase(t, &pinterestAPIBase, srv.URL)

	creds := credential.NewMemoryStore()
	creds.Put("user1", "pinterest", &credential.Token{
		AccessToken: "tok",
		Extra:       map[string]string{"board_id": "board42"},
	})

	out := NewPinterest(creds, library.NewMemoryRecorder()).Publish(context.Background(), "user1", job.Content{
		Caption: "pins",
		Media: []job.MediaRef{
			{URL: "https://cdn.example.com/a.jpg", ContentType: "image/jpeg"},
			{URL: "https://cdn.example.com/b.jpg", ContentType: "image/jpeg"},
		},
	})
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Posted == nil || *out.Posted != 2 {
		t.Errorf("posted = %v, expected 2", out.Posted)
	}
	if len(reqs) != 2 || reqs[0].BoardID != "board42" || reqs[0].MediaSource.SourceType != "image_url" {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestYouTubeRequiresVideo(t *testing.T) {
	t.Parallel()

	creds := credential.NewMemoryStore()
	creds.Put("user1", "youtube", &credential.Token{AccessToken: "tok"})

	out := NewYouTube(creds, library.NewMemoryRecorder()).Publish(context.Background(), "user1", job.Content{
		Caption: "image only",
		Media:   []job.MediaRef{{URL: "https://cdn.example.com/a.jpg", ContentType: "image/jpeg"}},
	})
	if out.OK || out.Error != "youtube_requires_video" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestYouTubeUpload(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("fake-video-bytes"))
	}))
	defer media.Close()

	var gotAuth, gotContentType string
	var gotBody []byte
	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"id":"vid_1"}`))
	}))
	defer upload.Close()
	overrideBase(t, &youtubeUploadURL, upload.URL)

	creds := credential.NewMemoryStore()
	creds.Put("user1", "youtube", &credential.Token{AccessToken: "yt-token"})
	lib := library.NewMemoryRecorder()

	out := NewYouTube(creds, lib).Publish(context.Background(), "user1", job.Content{
		Caption: "my clip",
		Media:   []job.MediaRef{{URL: media.URL + "/clip.mp4", ContentType: "video/mp4"}},
	})
	if !out.OK {
		t.Fatalf("expected success, got %+v", out)
	}
	if gotAuth != "Bearer yt-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.HasPrefix(gotContentType, "multipart/related; boundary=") {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if !strings.Contains(string(gotBody), `"title":"my clip"`) {
		t.Error("upload body missing snippet title")
	}
	if !strings.Contains(string(gotBody), "fake-video-bytes") {
		t.Error("upload body missing video bytes")
	}
	if out.Details["videoId"] != "vid_1" {
		t.Errorf("details = %v", out.Details)
	}
	if items := lib.Items(); len(items) != 1 || items[0].RemoteID != "vid_1" {
		t.Errorf("library items = %+v", items)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newClient(clientConfig{RequestsPerSecond: 1000, Burst: 10})
	var out map[string]any
	if err := c.postJSON(context.Background(), srv.URL, map[string]string{"k": "v"}, &out); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, expected 2", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	c := newClient(clientConfig{RequestsPerSecond: 1000, Burst: 10})
	err := c.postJSON(context.Background(), srv.URL, map[string]string{"k": "v"}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, expected no retry on 400", got)
	}
}

func TestMediaTypeDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		url         string
		video       bool
		image       bool
	}{
		{"video/mp4", "", true, false},
		{"image/jpeg", "", false, true},
		{"", "https://cdn.example.com/a.mp4", true, false},
		{"", "https://cdn.example.com/a.PNG", false, true},
		{"video/mp4; codecs=avc1", "", true, false},
		{"", "https://cdn.example.com/file", false, false},
	}
	for _, tt := range tests {
		if got := isVideo(tt.contentType, tt.url); got != tt.video {
			t.Errorf("isVideo(%q, %q) = %v", tt.contentType, tt.url, got)
		}
		if got := isImage(tt.contentType, tt.url); got != tt.image {
			t.Errorf("isImage(%q, %q) = %v", tt.contentType, tt.url, got)
		}
	}
}
