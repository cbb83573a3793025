package api

import (
	"fmt"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/testgenai/testgen/pkg/events"
)

// streamTaskHandler handles GET /tasks/:id/stream: a Server-Sent-Events feed
// of progress events, one JSON object per event (spec §6). Reconnects carry
// the last event id they saw in the standard `Last-Event-ID` header, which
// the broker uses to replay anything missed while disconnected.
func (s *Server) streamTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, err := s.requests.Get(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}

	var lastEventID int64
	if v := c.Request().Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastEventID = n
		}
	}

	ch, unsubscribe, err := s.broker.Subscribe(c.Request().Context(), events.RequestChannel(id), lastEventID)
	if err != nil {
		return mapServiceError(err)
	}
	defer unsubscribe()

	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
