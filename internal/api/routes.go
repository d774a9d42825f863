package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/orchestrator"
)

func (s *APIServer) RegisterRoutes() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", s.Health)

	router.GET("/quoter/v1.0/quote/receive", s.GetQuote)

	router.POST("/orders/v1.0/order", s.CreateOrder)
	router.GET("/orders/v1.0/order", s.ListOrders)
	router.GET("/orders/v1.0/order/:orderId", s.GetOrder)
	router.DELETE("/orders/v1.0/order/:orderId", s.CancelOrder)
	router.POST("/orders/v1.0/prune", s.PruneOrders)

	router.POST("/tokens/v1.0/approve", s.ApproveToken)

	return s.corsMiddleware(router)
}

func (s *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"chains": s.orchestrator.SupportedChains(),
	})
}

func (s *APIServer) GetQuote(c *gin.Context) {
	params := common.QuoteRequestParams{
		SrcChain:        c.Query("srcChain"),
		DstChain:        c.Query("dstChain"),
		SrcTokenAddress: c.Query("srcTokenAddress"),
		DstTokenAddress: c.Query("dstTokenAddress"),
		Amount:          c.Query("amount"),
		WalletAddress:   c.Query("walletAddress"),
		EnableEstimate:  c.Query("enableEstimate") == "true",
	}
	if params.SrcChain == "" || params.DstChain == "" || params.Amount == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "srcChain, dstChain and amount are required"})
		return
	}

	quote, err := s.orchestrator.GetQuote(c.Request.Context(), params)
	if err != nil {
		s.logger.Error().Err(err).Msg("quote request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch quote"})
		return
	}

	c.JSON(http.StatusOK, quote)
}

// CreateOrderRequest is the JSON body of the order placement endpoint.
type CreateOrderRequest struct {
	SrcChain common.ChainID `json:"srcChain"`
	DstChain common.ChainID `json:"dstChain"`
	SrcAsset common.Asset   `json:"srcAsset"`
	DstAsset common.Asset   `json:"dstAsset"`
	Amount   string         `json:"amount"`
	Maker    string         `json:"maker"`
	Deadline int64          `json:"deadline"`
}

func (s *APIServer) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order payload"})
		return
	}

	order, err := s.orchestrator.CreateOrder(c.Request.Context(), orchestrator.CreateOrderParams{
		SrcChain: req.SrcChain,
		DstChain: req.DstChain,
		SrcAsset: req.SrcAsset,
		DstAsset: req.DstAsset,
		Amount:   req.Amount,
		Maker:    req.Maker,
		Deadline: req.Deadline,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("order creation failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (s *APIServer) ListOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.orchestrator.GetAllOrders()})
}

func (s *APIServer) GetOrder(c *gin.Context) {
	order, err := s.orchestrator.GetOrder(c.Param("orderId"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *APIServer) CancelOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	if err := s.orchestrator.CancelOrder(c.Request.Context(), orderID); err != nil {
		s.logger.Error().Err(err).Str("orderId", orderID).Msg("order cancellation failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": orderID, "status": common.StatusCancelled})
}

func (s *APIServer) PruneOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pruned": s.orchestrator.PruneOrders()})
}

// ApproveTokenRequest is the JSON body of the token approval endpoint.
type ApproveTokenRequest struct {
	Asset   common.Asset `json:"asset"`
	Spender string       `json:"spender"`
	Amount  string       `json:"amount"`
}

func (s *APIServer) ApproveToken(c *gin.Context) {
	var req ApproveTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid approval payload"})
		return
	}
	if req.Spender == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spender is required"})
		return
	}

	result, err := s.orchestrator.ApproveToken(c.Request.Context(), req.Asset, req.Spender, req.Amount)
	if err != nil {
		s.logger.Error().Err(err).Str("chain", string(req.Asset.ChainID)).Msg("token approval failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"txHash": result.Hash, "status": result.Status})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidOrder),
		errors.Is(err, common.ErrUnsupportedChain),
		errors.Is(err, common.ErrUnsupportedChainPair):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
