package progress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yersiniasGhost/berlin-sub000/pkg/optimizer"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	return conn
}

func TestHubBroadcastsGenerationReports(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	t.Cleanup(hub.Stop)
	go hub.Run()

	conn := dialHub(t, hub)

	broadcaster := NewBroadcaster(hub, zerolog.Nop())
	broadcaster.OnGeneration(&optimizer.GenerationReport{
		Generation: 3,
		Split:      "jan",
		Evaluated:  10,
		EliteCount: 1,
		Elites: []optimizer.EliteSummary{
			{ID: "a1b2", Fitness: []float64{-0.5, 0.25}},
		},
		BestFitness: []float64{-0.5, 0.25},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageTypeGeneration, msg.Type)

	var report optimizer.GenerationReport
	require.NoError(t, json.Unmarshal(msg.Data, &report))
	assert.Equal(t, 3, report.Generation)
	assert.Equal(t, "jan", report.Split)
	require.Len(t, report.Elites, 1)
	assert.Equal(t, "a1b2", report.Elites[0].ID)
	assert.Equal(t, []float64{-0.5, 0.25}, report.Elites[0].Fitness)
	assert.Equal(t, []float64{-0.5, 0.25}, report.BestFitness)
}

func TestHubRunComplete(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	t.Cleanup(hub.Stop)
	go hub.Run()

	conn := dialHub(t, hub)

	broadcaster := NewBroadcaster(hub, zerolog.Nop())
	broadcaster.RunComplete(&optimizer.RunResult{Generations: 5, Stopped: false})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageTypeRunComplete, msg.Type)
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	assert.Zero(t, hub.ClientCount())
}

func TestHubStopEndsRun(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Stop()
	hub.Stop() // idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}
