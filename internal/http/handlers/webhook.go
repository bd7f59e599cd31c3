package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/planner"
	"github.com/nukevideo/nukevideo/internal/storage"
)

// PlanBuilder turns one upload event into a persisted transcoding plan.
type PlanBuilder interface {
	BuildPlan(ctx context.Context, event planner.UploadEvent) (*models.MediaItem, error)
}

// WebhookHandler ingests object-created notifications from the storage
// backend and dispatches them to the planner.
type WebhookHandler struct {
	planner      PlanBuilder
	store        storage.ObjectStore
	uploadPrefix string
	cfg          config.IngestionConfig
	logger       *slog.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(p PlanBuilder, store storage.ObjectStore, storageCfg config.StorageConfig, ingestCfg config.IngestionConfig) *WebhookHandler {
	return &WebhookHandler{
		planner:      p,
		store:        store,
		uploadPrefix: storageCfg.UploadPrefix,
		cfg:          ingestCfg,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *WebhookHandler) WithLogger(logger *slog.Logger) *WebhookHandler {
	h.logger = logger
	return h
}

// storageEvent is the S3-style notification payload (MinIO sends the same
// shape, with user metadata included on the object).
type storageEvent struct {
	Records []storageRecord `json:"Records"`
}

type storageRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key          string            `json:"key"`
			Size         int64             `json:"size"`
			ContentType  string            `json:"contentType"`
			UserMetadata map[string]string `json:"userMetadata"`
		} `json:"object"`
	} `json:"s3"`
}

// webhookResponse reports the per-request ingest outcome.
type webhookResponse struct {
	Created []string `json:"created"`
	Errors  []string `json:"errors,omitempty"`
}

// ServeHTTP handles POST /webhooks/storage. Only object-created events
// under the upload prefix are planned; anything else is skipped. Plan
// failures are answered synchronously and the rejected upload is removed
// when configured to do so.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var event storageEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := webhookResponse{Created: []string{}}
	for _, record := range event.Records {
		if !objectCreated(record.EventName) {
			continue
		}

		key := record.S3.Object.Key
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if !strings.HasPrefix(key, h.uploadPrefix) {
			continue
		}

		item, err := h.ingest(r.Context(), record, key)
		if err != nil {
			resp.Errors = append(resp.Errors, key+": "+err.Error())
			continue
		}
		resp.Created = append(resp.Created, item.ID.String())
	}

	status := http.StatusOK
	if len(resp.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// ingest plans one uploaded object, deleting it on rejection when
// configured.
func (h *WebhookHandler) ingest(ctx context.Context, record storageRecord, key string) (*models.MediaItem, error) {
	upload := planner.UploadEvent{
		Key:         key,
		Size:        record.S3.Object.Size,
		ContentType: record.S3.Object.ContentType,
		UserID:      metadataValue(record.S3.Object.UserMetadata, "user-id"),
		TemplateID:  metadataValue(record.S3.Object.UserMetadata, "template-id"),
		Name:        metadataValue(record.S3.Object.UserMetadata, "name"),
	}

	item, err := h.planner.BuildPlan(ctx, upload)
	if err != nil {
		h.logger.Warn("upload rejected",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		if h.cfg.DeleteRejected && rejectedByPolicy(err) {
			if derr := h.store.Delete(ctx, key); derr != nil {
				h.logger.Warn("deleting rejected upload",
					slog.String("key", key),
					slog.String("error", derr.Error()),
				)
			}
		}
		return nil, err
	}
	return item, nil
}

// objectCreated filters to the finished-upload events.
func objectCreated(eventName string) bool {
	switch eventName {
	case "s3:ObjectCreated:Put", "s3:ObjectCreated:CompleteMultipartUpload":
		return true
	default:
		return false
	}
}

// rejectedByPolicy distinguishes plan rejections from transient failures.
// Only policy rejections delete the upload, a probe hiccup must not
// destroy the source.
func rejectedByPolicy(err error) bool {
	return errors.Is(err, planner.ErrUnsupportedMediaType) ||
		errors.Is(err, planner.ErrInvalidMetadata) ||
		errors.Is(err, planner.ErrTemplateNotFound) ||
		errors.Is(err, planner.ErrNoVariantConfigured)
}

// metadataValue reads a user metadata field tolerating the S3 header
// casing variants.
func metadataValue(meta map[string]string, name string) string {
	if meta == nil {
		return ""
	}
	for _, key := range []string{
		name,
		"X-Amz-Meta-" + canonicalMetaKey(name),
		"x-amz-meta-" + name,
	} {
		if v, ok := meta[key]; ok {
			return v
		}
	}
	return ""
}

// canonicalMetaKey turns "user-id" into "User-Id".
func canonicalMetaKey(name string) string {
	parts := strings.Split(name, "-")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "-")
}
