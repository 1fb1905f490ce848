package hubsocket

import (
	"context"
	"time"
)

// monitorKeepAlive watches a connected session for server silence. After
// two thirds of the timeout the connection is logged as slow; after the
// full timeout it is treated as lost.
func (t *Transport) monitorKeepAlive(ctx context.Context, s *Session, timeout time.Duration) {
	interval := timeout / 3
	if interval <= 0 {
		interval = timeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slow := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.State() != Connected {
			slow = false
			continue
		}
		since := s.sinceActive()
		switch {
		case since >= timeout:
			t.sessionLog(s).Warn().Dur("silence", since).Msg("keep-alive timed out")
			slow = false
			t.lostConnection(s)
		case since >= timeout*2/3:
			if !slow {
				t.sessionLog(s).Warn().Dur("silence", since).Msg("connection slow")
				slow = true
			}
		default:
			slow = false
		}
	}
}
