package websocket

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjmurr/movebook/pkg/logger"
)

func newTestHub(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer(logger.NewNop())
	go s.Run()

	srv := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNotifyDataChangedReachesSubscribers(t *testing.T) {
	s, url := newTestHub(t)
	conn := dial(t, url)
	defer conn.Close()

	s.NotifyDataChanged("movements")

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeDataChanged, msg.Type)
	assert.Equal(t, "movements", msg.Data["source"])
}

func TestHubSurvivesClientDisconnect(t *testing.T) {
	s, url := newTestHub(t)

	gone := dial(t, url)
	stays := dial(t, url)
	defer stays.Close()

	require.NoError(t, gone.Close())

	// Broadcasts after the disconnect still reach the surviving client
	for i := 0; i < 3; i++ {
		s.NotifyDataChanged("bookings")
	}
	msg := readMessage(t, stays)
	assert.Equal(t, "bookings", msg.Data["source"])
}

func TestDisconnectReleasesClientGoroutines(t *testing.T) {
	s, url := newTestHub(t)
	baseline := runtime.NumGoroutine()

	conns := make([]*websocket.Conn, 0, 4)
	for i := 0; i < 4; i++ {
		conns = append(conns, dial(t, url))
	}
	for _, c := range conns {
		require.NoError(t, c.Close())
	}

	// Keep the hub busy so a writePump stuck on its send channel would
	// stay visibly parked.
	s.NotifyDataChanged("movements")

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+2
	}, 3*time.Second, 50*time.Millisecond, "client pumps must exit after disconnect")
}
