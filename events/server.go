package events

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/fwornle/kg-orchestrator/events/transport"
	"github.com/fwornle/kg-orchestrator/internal/server"
	"github.com/fwornle/kg-orchestrator/internal/tlsutil"
	"github.com/fwornle/kg-orchestrator/orchestrator"
)

// ServerConfig assembles everything NewServerManager needs to host the
// events websocket endpoint.
type ServerConfig struct {
	HTTP       server.Config
	UseTLS     bool
	AuthSecret []byte
}

// NewServerManager wires a Hub and Relay's dispatch surface onto a
// server.Manager-hosted "/ws" endpoint. When config.UseTLS is set, the
// listener's TLS config comes from tlsutil.DefaultTLSConfig() (AEAD-only
// cipher suites, TLS 1.2+).
func NewServerManager(config ServerConfig, hub *Hub, orch *orchestrator.Orchestrator, logger *zap.Logger) *server.Manager {
	var auth *Authenticator
	if len(config.AuthSecret) > 0 {
		auth = NewAuthenticator(config.AuthSecret)
	}

	wsHandler := transport.NewHandler(hub, func(cmd Command) error { return Dispatch(orch, cmd) }, auth, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)

	httpConfig := config.HTTP
	if config.UseTLS {
		httpConfig.TLSConfig = tlsutil.DefaultTLSConfig()
	}

	return server.NewManager(mux, httpConfig, logger)
}
