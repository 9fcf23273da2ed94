package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"notify-engine/internal/common/logger"
	"notify-engine/internal/models"
)

// HistoryIndexer mirrors delivered notifications into Elasticsearch for
// search and audit. It is optional: a nil indexer is a no-op so the
// dispatch path never depends on the cluster being up.
type HistoryIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewHistoryIndexer(client *elasticsearch.Client, index string, log logger.Logger) *HistoryIndexer {
	return &HistoryIndexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "history-indexer"}),
	}
}

// Index stores a delivery outcome document. Failures are logged, never
// propagated: indexing is best-effort.
func (h *HistoryIndexer) Index(ctx context.Context, rec *models.NotificationRecord, outcome string) {
	if h == nil || h.client == nil {
		return
	}

	doc := map[string]interface{}{
		"notificationId": rec.ID,
		"recipientId":    rec.RecipientID,
		"category":       rec.Category,
		"channel":        rec.Channel,
		"severity":       rec.Severity.String(),
		"status":         rec.Status,
		"outcome":        outcome,
		"retryCount":     rec.RetryCount,
		"createdAt":      rec.CreatedAt,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		h.logger.Warn("failed to encode history document", map[string]interface{}{
			"error":          err.Error(),
			"notificationId": rec.ID,
		})
		return
	}

	res, err := h.client.Index(
		h.index,
		bytes.NewReader(body),
		h.client.Index.WithContext(ctx),
		h.client.Index.WithDocumentID(fmt.Sprintf("%s-%d", rec.ID, rec.RetryCount)),
	)
	if err != nil {
		h.logger.Warn("history index request failed", map[string]interface{}{
			"error":          err.Error(),
			"notificationId": rec.ID,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		h.logger.Warn("history index rejected", map[string]interface{}{
			"status":         res.Status(),
			"notificationId": rec.ID,
		})
	}
}
