package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"txdecoder/internal/abiloader"
	"txdecoder/internal/chain"
	"txdecoder/internal/decode"
	"txdecoder/internal/model"
	"txdecoder/internal/strategy"
)

const requestIDHeader = "X-Request-ID"

// Decoder is the decode surface the HTTP handlers call into.
type Decoder interface {
	DecodeTransaction(ctx context.Context, chainID uint64, hash common.Hash) (*model.DecodedTransaction, error)
	DecodeCalldata(ctx context.Context, chainID uint64, to common.Address, data []byte) (*model.DecodeResult, error)
}

type handler struct {
	dec    Decoder
	logger *zap.Logger
}

func NewRouter(dec Decoder, metrics http.Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{dec: dec, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/v1/decode")
	v1.POST("/transaction", h.decodeTransaction)
	v1.POST("/calldata", h.decodeCalldata)
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

type transactionRequest struct {
	ChainID uint64 `json:"chainId" binding:"required"`
	Hash    string `json:"hash" binding:"required"`
}

type calldataRequest struct {
	ChainID uint64 `json:"chainId" binding:"required"`
	To      string `json:"to" binding:"required"`
	Data    string `json:"data" binding:"required"`
}

func (h *handler) decodeTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	raw, err := hexutil.Decode(req.Hash)
	if err != nil || len(raw) != common.HashLength {
		badRequest(c, "hash must be a 32 byte hex string")
		return
	}

	tx, err := h.dec.DecodeTransaction(c.Request.Context(), req.ChainID, common.BytesToHash(raw))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *handler) decodeCalldata(c *gin.Context) {
	var req calldataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !common.IsHexAddress(req.To) {
		badRequest(c, "to must be a hex address")
		return
	}
	data, err := hexutil.Decode(req.Data)
	if err != nil {
		badRequest(c, "data must be 0x prefixed hex")
		return
	}

	res, err := h.dec.DecodeCalldata(c.Request.Context(), req.ChainID, common.HexToAddress(req.To), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("decode failed", zap.String("request_id", c.GetString("request_id")), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		unknownNet *chain.UnknownNetworkError
		creation   *decode.ContractCreationError
		notFound   *decode.MethodNotFoundError
		fetch      *decode.FetchError
		noHealthy  *strategy.NoHealthyStrategyError
		missingABI *abiloader.MissingABIError
	)
	switch {
	case errors.As(err, &unknownNet), errors.Is(err, decode.ErrEmptyCalldata):
		return http.StatusBadRequest
	case errors.As(err, &creation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &noHealthy):
		return http.StatusServiceUnavailable
	case errors.As(err, &notFound), errors.As(err, &missingABI):
		return http.StatusNotFound
	case errors.As(err, &fetch):
		if errors.Is(err, ethereum.NotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
