package alipan

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/alipan-go/internal/metrics"
)

// UploadPart PUTs data to a signed part upload URL. The URL is
// pre-authenticated, so no Authorization header is sent, and Content-Type is
// left empty because it is part of the URL signature.
func (c *Client) UploadPart(ctx context.Context, uploadURL string, data []byte) error {
	var attempt int

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("alipan: creating upload request: %w", err)
		}

		req.ContentLength = int64(len(data))
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("alipan: upload canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				if sleepErr := c.retryUpload(ctx, attempt, 0, err.Error()); sleepErr != nil {
					return sleepErr
				}

				attempt++

				continue
			}

			metrics.RecordRemoteCall("uploadPart", false)

			return fmt.Errorf("alipan: uploading part failed after %d retries: %w", maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			resp.Body.Close()
			metrics.RecordRemoteCall("uploadPart", true)

			return nil
		}

		apiErr := readAPIError(resp)

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			if sleepErr := c.retryUpload(ctx, attempt, resp.StatusCode, apiErr.Message); sleepErr != nil {
				return sleepErr
			}

			attempt++

			continue
		}

		metrics.RecordRemoteCall("uploadPart", false)

		return apiErr
	}
}

func (c *Client) retryUpload(ctx context.Context, attempt, status int, reason string) error {
	backoff := c.calcBackoff(attempt)
	c.logger.Warn("retrying part upload",
		slog.Int("status", status),
		slog.Int("attempt", attempt+1),
		slog.Duration("backoff", backoff),
		slog.String("reason", reason),
	)
	metrics.RecordRemoteRetry("uploadPart")

	if err := c.sleepFunc(ctx, backoff); err != nil {
		return fmt.Errorf("alipan: upload canceled: %w", err)
	}

	return nil
}
