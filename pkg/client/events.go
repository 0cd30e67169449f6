package client

import (
	"bufio"
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/formcoach/pkg/events"
)

// SubscribeEvents streams daemon events until ctx is done or the daemon goes
// away. The returned channel is closed then.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	ch := make(chan events.Event, 16)

	go func() {
		defer close(ch)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
		if err != nil {
			logrus.WithError(err).Error("failed to create event request")
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.streamClient.Do(req)
		if err != nil {
			logrus.WithError(err).Debug("failed to subscribe to events")
			return
		}
		defer resp.Body.Close()

		if err := statusError(resp.StatusCode, resp.Status); err != nil {
			logrus.WithError(err).Debug("failed to subscribe to events")
			return
		}

		if err := readSSE(ctx, bufio.NewScanner(resp.Body), ch); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream ended")
		}
	}()

	return ch
}

// readSSE decodes text/event-stream frames into ch.
func readSSE(ctx context.Context, sc *bufio.Scanner, ch chan<- events.Event) error {
	var name string
	var data []string

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if name == "" && len(data) == 0 {
				continue
			}
			ev := events.Event{Name: name, Data: []byte(strings.Join(data, "\n"))}
			name, data = "", nil
			select {
			case ch <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}
