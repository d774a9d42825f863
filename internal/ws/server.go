// Package ws streams order lifecycle events to websocket subscribers.
package ws

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
)

type WSServer struct {
	port        int
	broadcaster *common.Broadcaster
	logger      zerolog.Logger
}

func NewWSServer(broadcaster *common.Broadcaster, logger zerolog.Logger) *http.Server {
	port, _ := strconv.Atoi(os.Getenv("WS_PORT"))
	if port == 0 {
		port = 8081
	}

	s := &WSServer{
		port:        port,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "ws").Logger(),
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Serve(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
