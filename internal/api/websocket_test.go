package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fund-ledger/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamFilter(t *testing.T) {
	closed7 := events.Event{Type: events.EventFundClosed, Data: map[string]interface{}{"fund_id": int64(7)}}
	revalued8 := events.Event{Type: events.EventFundRevalued, Data: map[string]interface{}{"fund_id": int64(8)}}
	deposit := events.Event{Type: events.EventDepositRecorded, Data: map[string]interface{}{"payment_id": int64(1)}}

	tests := []struct {
		name    string
		query   string
		want    []bool
		wantErr bool
	}{
		{"everything", "", []bool{true, true, true}, false},
		{"one type", "types=fund_closed", []bool{true, false, false}, false},
		{"two types", "types=FUND_CLOSED,FUND_REVALUED", []bool{true, true, false}, false},
		{"one fund", "fund_id=8", []bool{false, true, false}, false},
		{"type and fund", "types=FUND_CLOSED&fund_id=8", []bool{false, false, false}, false},
		{"bad fund", "fund_id=x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/ws?"+tt.query, nil)

			f, err := parseStreamFilter(c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			got := []bool{f.matches(closed7), f.matches(revalued8), f.matches(deposit)}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, false)
	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?fund_id=7"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var welcome map[string]interface{}
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "CONNECTED", welcome["type"])
	assert.Equal(t, float64(7), welcome["fund_id"])
	assert.Eventually(t, func() bool { return env.server.hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	bus := env.server.deps.EventBus
	bus.PublishFundClosed(8, "other", decimal.NewFromInt(1), decimal.NewFromInt(1), 1)
	bus.PublishFundClosed(7, "ours", decimal.NewFromInt(200), decimal.NewFromInt(151), 2)

	var event events.Event
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, events.EventFundClosed, event.Type)
	assert.Equal(t, "ours", event.Data["reference"])
	assert.Equal(t, "151", event.Data["clients_net_total"])
}

func TestEventStreamRejectsBadFilter(t *testing.T) {
	env := newTestEnv(t, false)

	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?fund_id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
