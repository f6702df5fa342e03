package broadcast

import (
	"context"
	"testing"
	"time"

	"socialpub/internal/job"
)

func TestProgressFrame(t *testing.T) {
	t.Parallel()

	posted := 1
	f := Progress("pub_1", job.Outcome{Provider: "facebook", OK: true, Posted: &posted})
	if f.Type != FrameProgress || f.JobID != "pub_1" || f.Provider != "facebook" {
		t.Errorf("frame = %+v", f)
	}
	if f.OK == nil || !*f.OK {
		t.Error("expected ok=true")
	}
	if f.Posted == nil || *f.Posted != 1 {
		t.Errorf("posted = %v", f.Posted)
	}

	f = Progress("pub_1", job.Outcome{Provider: "tiktok", OK: false, Error: "tiktok_requires_video"})
	if f.OK == nil || *f.OK {
		t.Error("expected ok=false")
	}
	if f.Error != "tiktok_requires_video" {
		t.Errorf("error = %q", f.Error)
	}
}

func TestDoneFrame(t *testing.T) {
	t.Parallel()

	j := &job.Job{
		ID:     "pub_2",
		Status: job.StatusCompletedWithErrors,
		Outcomes: map[string]job.Outcome{
			"facebook": {Provider: "facebook", OK: true},
			"tiktok":   {Provider: "tiktok", OK: false, Error: "not_connected"},
		},
	}
	f := Done(j)
	if f.Type != FrameDone || f.JobID != "pub_2" || f.Status != job.StatusCompletedWithErrors {
		t.Errorf("frame = %+v", f)
	}
	if len(f.Results) != 2 {
		t.Errorf("results = %v", f.Results)
	}
}

func TestHubDeliversInOrder(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	defer h.Close()

	ch, cancel := h.Subscribe("pub_1")
	defer cancel()

	for _, p := range []string{"facebook", "instagram", "tiktok"} {
		if err := h.Publish(context.Background(), "pub_1", Progress("pub_1", job.Outcome{Provider: p, OK: true})); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	for _, want := range []string{"facebook", "instagram", "tiktok"} {
		select {
		case f := <-ch:
			if f.Provider != want {
				t.Errorf("provider = %s, expected %s", f.Provider, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
}

func TestHubIsolatesJobs(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	defer h.Close()

	ch1, cancel1 := h.Subscribe("pub_1")
	defer cancel1()
	ch2, cancel2 := h.Subscribe("pub_2")
	defer cancel2()

	h.Publish(context.Background(), "pub_1", Progress("pub_1", job.Outcome{Provider: "facebook", OK: true}))

	select {
	case f := <-ch1:
		if f.JobID != "pub_1" {
			t.Errorf("jobId = %s", f.JobID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	select {
	case f := <-ch2:
		t.Errorf("unexpected frame on other job's subscription: %+v", f)
	default:
	}
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	defer h.Close()

	ch, cancel := h.Subscribe("pub_1")
	defer cancel()

	// Nobody reads; everything past the buffer is dropped, and Publish
	// never blocks.
	total := subscriberBuffer + 5
	for i := 0; i < total; i++ {
		h.Publish(context.Background(), "pub_1", Progress("pub_1", job.Outcome{Provider: "facebook", OK: true}))
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != subscriberBuffer {
				t.Errorf("received = %d, expected buffer size %d", received, subscriberBuffer)
			}
			return
		}
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	defer h.Close()

	ch, cancel := h.Subscribe("pub_1")
	cancel()
	cancel() // idempotent

	if _, open := <-ch; open {
		t.Error("expected channel closed after cancel")
	}
	// Publish after cancel must not panic.
	if err := h.Publish(context.Background(), "pub_1", Frame{Type: FrameProgress, JobID: "pub_1"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
}

func TestHubClose(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	ch, cancel := h.Subscribe("pub_1")
	h.Close()
	h.Close() // idempotent

	if _, open := <-ch; open {
		t.Error("expected channel closed after hub close")
	}
	cancel() // must not panic after close

	late, lateCancel := h.Subscribe("pub_1")
	defer lateCancel()
	if _, open := <-late; open {
		t.Error("expected closed channel from subscribe after close")
	}
}
