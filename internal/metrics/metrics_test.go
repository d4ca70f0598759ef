package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveTurnCountsResult(t *testing.T) {
	ObserveTurn("send", time.Now(), errors.New("boom"))
	body := scrape(t)
	require.Contains(t, body, `mchat_chat_turns_total{mode="send",result="error"}`)
	require.Contains(t, body, `mchat_chat_turn_seconds_count{mode="send"}`)
}

func TestHandlerExposesLockGauge(t *testing.T) {
	TrackLocks(func() int { return 3 })
	require.Contains(t, scrape(t), "mchat_conversation_locks 3")
}
