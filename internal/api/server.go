package api

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/orchestrator"
)

type APIServer struct {
	port         int
	orchestrator *orchestrator.Orchestrator
	logger       zerolog.Logger
}

func NewAPIServer(o *orchestrator.Orchestrator, logger zerolog.Logger) *http.Server {
	port, _ := strconv.Atoi(os.Getenv("API_PORT"))
	if port == 0 {
		port = 8080
	}

	s := &APIServer{
		port:         port,
		orchestrator: o,
		logger:       logger.With().Str("component", "api").Logger(),
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
