package monitor

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Connect dials a feed URL, e.g. ws://127.0.0.1:7000/ws?pin=1234.
func Connect(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to monitor: %w", err)
	}
	return conn, nil
}

// Watch connects to url and calls fn for every event until ctx is
// cancelled or the feed ends.
func Watch(ctx context.Context, url string, fn func(Event)) error {
	conn, err := Connect(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read monitor event: %w", err)
		}
		fn(ev)
	}
}
