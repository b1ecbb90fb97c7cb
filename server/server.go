// Package server exposes vault state over HTTP and streams LPDA bids over
// WebSocket. It only reads; nothing here signs or submits.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/db"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/vault"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Opener binds a vault handle, usually vault.Open with fixed deps.
type Opener func(ctx context.Context, address common.Address) (*vault.Vault, error)

// Server serves the read API. Opened vaults are kept for the server's
// lifetime since a vault's modules never change.
type Server struct {
	open    Opener
	store   *db.Store
	chainID uint64
	log     *logrus.Logger

	mu     sync.Mutex
	vaults map[common.Address]*vault.Vault

	upgrader websocket.Upgrader
}

// New returns a server. store may be nil, which disables the journal route.
func New(open Opener, store *db.Store, chainID uint64, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		open:    open,
		store:   store,
		chainID: chainID,
		log:     log,
		vaults:  make(map[common.Address]*vault.Vault),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("[API] %s - %s %s %d\n",
				param.TimeStamp.Format("2006-01-02 15:04:05"),
				param.Method,
				param.Path,
				param.StatusCode,
			)
		},
	}))
	r.Use(gin.Recovery())

	r.GET("/journal", s.handleJournal)
	v := r.Group("/vaults/:address")
	{
		v.GET("", s.handleVault)
		v.GET("/buyout", s.handleBuyout)
		v.GET("/holdings/:owner", s.handleHolding)
		v.GET("/lpda", s.handleLPDA)
		v.GET("/lpda/bids", s.handleBids)
		v.GET("/lpda/minters", s.handleMinters)
		v.GET("/lpda/ws", s.handleBidStream)
	}
	return r
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Infof("Starting vault API on %s", addr)
	return s.Router().Run(addr)
}

func (s *Server) vault(c *gin.Context) (*vault.Vault, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		writeError(c, sdkerr.Validation("server.vault", "invalid vault address %q", raw))
		return nil, false
	}
	addr := common.HexToAddress(raw)

	s.mu.Lock()
	v, ok := s.vaults[addr]
	s.mu.Unlock()
	if ok {
		return v, true
	}

	v, err := s.open(c.Request.Context(), addr)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	s.mu.Lock()
	s.vaults[addr] = v
	s.mu.Unlock()
	return v, true
}

func statusOf(err error) int {
	switch sdkerr.KindOf(err) {
	case sdkerr.KindValidation:
		return http.StatusBadRequest
	case sdkerr.KindConfiguration:
		return http.StatusNotFound
	case sdkerr.KindStateConflict:
		return http.StatusConflict
	case sdkerr.KindAuthorization:
		return http.StatusForbidden
	case sdkerr.KindChainRead:
		return http.StatusBadGateway
	case sdkerr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{
		"error": err.Error(),
		"kind":  sdkerr.KindOf(err).String(),
	})
}

func (s *Server) handleVault(c *gin.Context) {
	v, ok := s.vault(c)
	if !ok {
		return
	}
	token, err := v.TokenInfo(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": v.Address.Hex(),
		"chainId": v.ChainID,
		"modules": v.Modules,
		"token":   token,
	})
}

func (s *Server) handleBuyout(c *gin.Context) {
	v, ok := s.vault(c)
	if !ok {
		return
	}
	if v.Buyout == nil {
		writeError(c, sdkerr.Configuration("server.buyout", "vault has no buyout module"))
		return
	}
	info, err := v.Buyout.Reader().Info(c.Request.Context(), v.Address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleHolding(c *gin.Context) {
	v, ok := s.vault(c)
	if !ok {
		return
	}
	if v.Buyout == nil {
		writeError(c, sdkerr.Configuration("server.holding", "vault has no buyout module"))
		return
	}
	owner := c.Param("owner")
	if !common.IsHexAddress(owner) {
		writeError(c, sdkerr.Validation("server.holding", "invalid owner address %q", owner))
		return
	}
	h, err := v.Buyout.Reader().Holding(c.Request.Context(), v.Address, common.HexToAddress(owner))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) handleLPDA(c *gin.Context) {
	v, ok := s.vault(c)
	if !ok {
		return
	}
	if v.LPDA == nil {
		writeError(c, sdkerr.Configuration("server.lpda", "vault has no LPDA module"))
		return
	}
	a := v.LPDA
	resp := gin.H{}
	var mu sync.Mutex
	set := func(k string, val any) {
		mu.Lock()
		resp[k] = val
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		info, err := a.Info(ctx)
		set("info", info)
		return err
	})
	g.Go(func() error {
		state, err := a.State(ctx)
		set("state", state)
		return err
	})
	g.Go(func() error {
		price, err := a.CurrentPrice(ctx)
		set("currentPrice", price)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBids(c *gin.Context) {
	v, ok := s.vault(c)
	if !ok {
		return
	}
	if v.LPDA == nil {
		writeError(c, sdkerr.Configuration("server.bids", "vault has no LPDA module"))
		return
	}
	bids, err := v.LPDA.Bids(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

func (s *Server) handleMinters(c *gin.Context) {
	v, ok := s.vault(c)
	if !ok {
		return
	}
	if v.LPDA == nil {
		writeError(c, sdkerr.Configuration("server.minters", "vault has no LPDA module"))
		return
	}
	minters, err := v.LPDA.Minters(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, minters)
}

func (s *Server) handleJournal(c *gin.Context) {
	if s.store == nil {
		writeError(c, sdkerr.Configuration("server.journal", "no journal configured"))
		return
	}
	var filter common.Address
	if raw := c.Query("vault"); raw != "" {
		if !common.IsHexAddress(raw) {
			writeError(c, sdkerr.Validation("server.journal", "invalid vault address %q", raw))
			return
		}
		filter = common.HexToAddress(raw)
	}
	entries, err := s.store.Journal(s.chainID, filter)
	if err != nil {
		s.log.Errorf("Failed to read journal: %v", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
