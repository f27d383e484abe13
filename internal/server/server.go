package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ricochet-gg/ricochet/internal/core/engine"
	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
	"github.com/ricochet-gg/ricochet/internal/core/resolver"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Server is the HTTP/WebSocket ingress in front of the hit validation
// engine. The wire protocol is an adapter: it carries exactly the data the
// engine validates, nothing more.
type Server struct {
	cfg       Config
	engine    *engine.Engine
	engineCfg engine.Config
	logger    log.Log

	httpServer *http.Server
}

func NewServer(cfg Config, engineCfg engine.Config, eng *engine.Engine, logger log.Log) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		cfg:       cfg,
		engine:    eng,
		engineCfg: engineCfg,
		logger:    logger,
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/admin/reset", s.handleReset)

	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.engine.Start(ctx, s.engineCfg)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.logger.Info("ingress listening", log.String("addr", s.cfg.ListenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		s.engine.Stop()
		return s.httpServer.Shutdown(context.Background())
	})
	return group.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error("error", err))
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	for {
		var envelope Envelope
		if err = conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", log.Error("error", err))
			}
			return
		}

		var reply Envelope
		switch envelope.Type {
		case TypePosition:
			reply = s.handlePosition(envelope.Data)
		case TypeShot:
			reply = s.handleShot(envelope.Data)
		default:
			reply = errorEnvelope("unknown message type")
		}
		if err = conn.WriteJSON(reply); err != nil {
			s.logger.Warn("websocket write failed", log.Error("error", err))
			return
		}
	}
}

func (s *Server) handlePosition(data json.RawMessage) Envelope {
	var update PositionUpdate
	if err := json.Unmarshal(data, &update); err != nil || update.EntityID == "" {
		return errorEnvelope("malformed position update")
	}
	flags := s.engine.RecordPosition(
		update.EntityID,
		mgl64.Vec3(update.Position),
		mgl64.Vec3(update.Velocity),
		update.ClientTime,
		update.Latency,
	)
	return marshalEnvelope(TypeFlags, FlagsResponse{Accepted: flags.Empty()})
}

func (s *Server) handleShot(data json.RawMessage) Envelope {
	var req ShotRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorEnvelope("malformed shot claim")
	}
	verdict := s.engine.ResolveShot(resolver.Claim{
		ClaimID:        req.ClaimID,
		ShooterID:      req.ShooterID,
		WeaponID:       req.WeaponID,
		Origin:         mgl64.Vec3(req.Origin),
		Direction:      mgl64.Vec3(req.Direction),
		DeclaredTarget: mgl64.Vec3(req.DeclaredTarget),
		TargetEntityID: req.TargetEntityID,
		ClientTime:     req.ClientTime,
	})
	return marshalEnvelope(TypeVerdict, VerdictResponse{
		ClaimID:  verdict.ClaimID,
		Valid:    verdict.Valid,
		Hit:      verdict.BodyPart != resolver.BodyPartNone,
		Damage:   verdict.Damage,
		BodyPart: verdict.BodyPart.String(),
		Distance: verdict.Distance,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.engine.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalShots:         stats.TotalShots,
		TotalCompensations: stats.TotalCompensations,
		SuccessRate:        stats.SuccessRate,
		FlaggedEntities:    stats.FlaggedEntities,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID := r.URL.Query().Get("entity")
	if entityID == "" {
		http.Error(w, "missing entity", http.StatusBadRequest)
		return
	}
	s.engine.ResetEntity(entityID)
	s.logger.Info("administrative reset", log.String("entity_id", entityID))
	w.WriteHeader(http.StatusNoContent)
}

func marshalEnvelope(msgType string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		return errorEnvelope("internal encoding error")
	}
	return Envelope{Type: msgType, Data: data}
}

func errorEnvelope(msg string) Envelope {
	data, _ := json.Marshal(ErrorResponse{Error: msg})
	return Envelope{Type: TypeError, Data: data}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
