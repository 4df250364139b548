// ABOUTME: Server-sent event reader for GET /api/events/stream
// ABOUTME: Calls back once per ledger event until the stream or context ends

package adminclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/2389/switchboard/internal/store"
)

// StreamEvents follows live traffic, for one tenant or all when tenantID is
// empty. It returns nil when the server ends the stream and ctx.Err() when
// ctx is cancelled. The client's request timeout does not apply.
func (c *Client) StreamEvents(ctx context.Context, tenantID string, onEvent func(store.LedgerEvent)) error {
	q := url.Values{}
	if tenantID != "" {
		q.Set("tenantId", tenantID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+withQuery("/api/events/stream", q), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	streamClient := &http.Client{Transport: c.client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return errorFromBody(resp.StatusCode, data)
	}

	err = parseSSEStream(resp.Body, func(event, data string) error {
		if event != "event" {
			return nil
		}
		var ev store.LedgerEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
		onEvent(ev)
		return nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// parseSSEStream reads "event:"/"data:" frames separated by blank lines.
// Comment lines and frames without data are skipped.
func parseSSEStream(body io.Reader, onFrame func(event, data string) error) error {
	scanner := bufio.NewScanner(body)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				if eventType == "" {
					eventType = "message"
				}
				if err := onFrame(eventType, strings.Join(dataLines, "\n")); err != nil {
					return err
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading SSE stream: %w", err)
	}
	return nil
}
