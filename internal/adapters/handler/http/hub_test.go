package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedwatch.dashboard/internal/core/domain"
)

type chanPubSub struct {
	ch chan domain.JobUpdate
}

func (p *chanPubSub) PublishJobUpdate(ctx context.Context, update domain.JobUpdate) error {
	p.ch <- update
	return nil
}

func (p *chanPubSub) SubscribeJobUpdates(ctx context.Context) (<-chan domain.JobUpdate, error) {
	return p.ch, nil
}

func TestHubForwardsJobUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := &chanPubSub{ch: make(chan domain.JobUpdate, 1)}
	hub := NewHub(pubsub)
	go hub.Run(ctx)
	go hub.JobUpdateConsumer(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, pubsub.PublishJobUpdate(ctx, domain.JobUpdate{JobID: "j1", Status: domain.JobStatusInProgress}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string           `json:"type"`
		Payload domain.JobUpdate `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "job_update", msg.Type)
	assert.Equal(t, domain.JobUpdate{JobID: "j1", Status: domain.JobStatusInProgress}, msg.Payload)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(&chanPubSub{ch: make(chan domain.JobUpdate)})

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	broadcastDone := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast(Message{Type: "job_update"})
		}
		close(broadcastDone)
	}()
	select {
	case <-broadcastDone:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a stopped hub")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, hub.ClientCount())
}
