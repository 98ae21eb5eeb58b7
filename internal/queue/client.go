// Package queue enqueues and processes background ingestion work via asynq.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/conversia-ai/conversia/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueDocumentIngest schedules a document for chunking and indexing.
// Returns the task ID.
func (c *Client) EnqueueDocumentIngest(payload DocumentIngestPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	info, err := c.client.Enqueue(
		asynq.NewTask(TypeDocumentIngest, data),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TypeDocumentIngest, err)
	}
	return info.ID, nil
}
