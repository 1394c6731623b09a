// Package guestcache invalidates cached guest task access. External guests
// reach individual tasks through tokenized links whose authorization is
// cached in Redis; when a task leaves the active state or its workflow is
// removed, the entries must go away immediately.
package guestcache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Cache interface {
	// DeactivateTask drops cached guest access for one task.
	DeactivateTask(ctx context.Context, workflowID, taskID string) error

	// DeleteWorkflow drops cached guest access for every task of the workflow.
	DeleteWorkflow(ctx context.Context, workflowID string) error

	Close() error
}

type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewClient(redisURL string, logger *slog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return &Client{
		rdb:    redis.NewClient(opts),
		logger: logger.With("module", "guestcache"),
	}, nil
}

func taskKey(workflowID, taskID string) string {
	return fmt.Sprintf("guest:%s:%s", workflowID, taskID)
}

func workflowPattern(workflowID string) string {
	return fmt.Sprintf("guest:%s:*", workflowID)
}

func (c *Client) DeactivateTask(ctx context.Context, workflowID, taskID string) error {
	err := c.rdb.Del(ctx, taskKey(workflowID, taskID)).Err()
	if err != nil {
		return fmt.Errorf("failed to drop guest access for task %s: %w", taskID, err)
	}

	return nil
}

func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string) error {
	iter := c.rdb.Scan(ctx, 0, workflowPattern(workflowID), 100).Iterator()

	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to drop guest access for workflow %s: %w", workflowID, err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan guest access keys: %w", err)
	}

	c.logger.Debug("guest access invalidated", "workflow_id", workflowID)

	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Nop satisfies Cache for tests and deployments without guest links.
type Nop struct{}

func (Nop) DeactivateTask(context.Context, string, string) error { return nil }
func (Nop) DeleteWorkflow(context.Context, string) error         { return nil }
func (Nop) Close() error                                         { return nil }
