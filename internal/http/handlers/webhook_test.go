package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/planner"
	"github.com/nukevideo/nukevideo/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlanner struct {
	events []planner.UploadEvent
	err    error
}

func (f *fakePlanner) BuildPlan(_ context.Context, event planner.UploadEvent) (*models.MediaItem, error) {
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}
	return &models.MediaItem{BaseModel: models.BaseModel{ID: models.NewULID()}}, nil
}

type deletingStore struct {
	storage.ObjectStore
	deleted []string
}

func (d *deletingStore) Delete(_ context.Context, key string) error {
	d.deleted = append(d.deleted, key)
	return nil
}

func (d *deletingStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}

func newWebhookTest(p *fakePlanner, store *deletingStore) *WebhookHandler {
	return NewWebhookHandler(p, store,
		config.StorageConfig{UploadPrefix: "tmp-videos/"},
		config.IngestionConfig{DeleteRejected: true},
	)
}

func eventBody(eventName, key string, meta map[string]string) io.Reader {
	record := map[string]any{
		"eventName": eventName,
		"s3": map[string]any{
			"bucket": map[string]any{"name": "nukevideo"},
			"object": map[string]any{
				"key":          key,
				"size":         1024,
				"contentType":  "video/mp4",
				"userMetadata": meta,
			},
		},
	}
	body, _ := json.Marshal(map[string]any{"Records": []any{record}})
	return strings.NewReader(string(body))
}

func TestWebhookHandler(t *testing.T) {
	meta := map[string]string{
		"X-Amz-Meta-User-Id":     "7f9c2ba4-e88f-11eb-9a03-0242ac130003",
		"X-Amz-Meta-Template-Id": models.NewULID().String(),
		"X-Amz-Meta-Name":        "clip.mp4",
	}

	t.Run("object created under prefix is planned", func(t *testing.T) {
		p := &fakePlanner{}
		h := newWebhookTest(p, &deletingStore{})

		req := httptest.NewRequest("POST", "/webhooks/storage",
			eventBody("s3:ObjectCreated:Put", "tmp-videos/clip.mp4", meta))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, 200, rec.Code)
		require.Len(t, p.events, 1)
		assert.Equal(t, "tmp-videos/clip.mp4", p.events[0].Key)
		assert.Equal(t, "7f9c2ba4-e88f-11eb-9a03-0242ac130003", p.events[0].UserID)
		assert.Equal(t, "clip.mp4", p.events[0].Name)

		var resp webhookResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Created, 1)
	})

	t.Run("url-encoded keys are decoded", func(t *testing.T) {
		p := &fakePlanner{}
		h := newWebhookTest(p, &deletingStore{})

		req := httptest.NewRequest("POST", "/webhooks/storage",
			eventBody("s3:ObjectCreated:Put", "tmp-videos%2Fmy+clip.mp4", meta))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Len(t, p.events, 1)
		assert.Equal(t, "tmp-videos/my clip.mp4", p.events[0].Key)
	})

	t.Run("events outside the prefix are skipped", func(t *testing.T) {
		p := &fakePlanner{}
		h := newWebhookTest(p, &deletingStore{})

		req := httptest.NewRequest("POST", "/webhooks/storage",
			eventBody("s3:ObjectCreated:Put", "other/clip.mp4", meta))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, 200, rec.Code)
		assert.Empty(t, p.events)
	})

	t.Run("non-created events are skipped", func(t *testing.T) {
		p := &fakePlanner{}
		h := newWebhookTest(p, &deletingStore{})

		req := httptest.NewRequest("POST", "/webhooks/storage",
			eventBody("s3:ObjectRemoved:Delete", "tmp-videos/clip.mp4", meta))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, p.events)
	})

	t.Run("policy rejection deletes the upload", func(t *testing.T) {
		p := &fakePlanner{err: fmt.Errorf("%w: video/avi", planner.ErrUnsupportedMediaType)}
		store := &deletingStore{}
		h := newWebhookTest(p, store)

		req := httptest.NewRequest("POST", "/webhooks/storage",
			eventBody("s3:ObjectCreated:Put", "tmp-videos/clip.avi", meta))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, 422, rec.Code)
		assert.Equal(t, []string{"tmp-videos/clip.avi"}, store.deleted)
	})

	t.Run("transient failure keeps the upload", func(t *testing.T) {
		p := &fakePlanner{err: errors.New("probe timeout")}
		store := &deletingStore{}
		h := newWebhookTest(p, store)

		req := httptest.NewRequest("POST", "/webhooks/storage",
			eventBody("s3:ObjectCreated:Put", "tmp-videos/clip.mp4", meta))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, 422, rec.Code)
		assert.Empty(t, store.deleted)
	})

	t.Run("malformed payload", func(t *testing.T) {
		h := newWebhookTest(&fakePlanner{}, &deletingStore{})
		req := httptest.NewRequest("POST", "/webhooks/storage", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, 400, rec.Code)
	})
}
