package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcconv-go/internal/pipeline"
	"pcconv-go/internal/service"
	"pcconv-go/pkg/token"
)

func TestEvents_StreamsPipelineEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtManager := token.NewJWTManager("test-secret", 1)
	tok, err := jwtManager.GenerateToken("tester")
	require.NoError(t, err)
	hub := service.NewProgressHub()

	srv := httptest.NewServer(NewRouter(&fakeBatchService{}, hub, jwtManager))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events/" + tok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	// 默认不推送逐行输出
	hub.Notify(pipeline.Event{Type: pipeline.EventOutput, ResultID: "r1", Line: "noise"})
	hub.Notify(pipeline.Event{Type: pipeline.EventUnitStarted, ResultID: "r1", InputFile: "/in/a.las"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got pipeline.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, pipeline.EventUnitStarted, got.Type)
	assert.Equal(t, "/in/a.las", got.InputFile)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
