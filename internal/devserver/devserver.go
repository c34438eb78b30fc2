// Package devserver implements the server half of the sync protocol against
// an in-memory triple store. It exists so the client can be exercised end to
// end: tests and demos dial it exactly like a production server.
package devserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trisync/core"
)

// Response status codes.
const (
	codeOK           uint16 = 0
	codeUnauthorized uint16 = 1
	codeBadRequest   uint16 = 2
	codeInternal     uint16 = 3
)

// Server serves the sync protocol over websocket plus health and metrics
// endpoints.
type Server struct {
	store  *core.TripleStore
	apiKey string
	log    *logrus.Logger
	tel    *core.Telemetry

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]bool
}

// New builds a server around the given store. apiKey is the only credential
// accepted on handshake; telemetry may be nil.
func New(store *core.TripleStore, apiKey string, log *logrus.Logger, tel *core.Telemetry) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		store:    store,
		apiKey:   apiKey,
		log:      log,
		tel:      tel,
		sessions: map[*session]bool{},
	}
}

// Router returns the HTTP surface: /sync (websocket), /healthz and, when
// telemetry is configured, /metrics.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/sync", s.handleSync)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.tel != nil {
		r.Handle("/metrics", s.tel.Handler())
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		s.log.Infof("%s %s", r.Method, r.RequestURI)
	})
}

// session is one websocket client.
type session struct {
	srv     *Server
	ws      *websocket.Conn
	writeMu sync.Mutex
	authed  bool
	subs    map[core.ID]bool
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	sess := &session{srv: s, ws: ws, subs: map[core.ID]bool{}}
	s.mu.Lock()
	s.sessions[sess] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		ws.Close()
	}()
	sess.loop(r.Context())
}

func (sess *session) loop(ctx context.Context) {
	for {
		_, data, err := sess.ws.ReadMessage()
		if err != nil {
			return
		}
		m, derr := core.DecodeClientMessage(data)
		if derr != nil {
			sess.srv.log.WithError(derr).Warn("dropping undecodable client frame")
			continue
		}
		sess.handle(ctx, m)
	}
}

func (sess *session) handle(ctx context.Context, m *core.ClientMessage) {
	if !sess.authed && m.Kind != core.MsgConnect {
		sess.respond(m.RequestID, codeUnauthorized, "handshake required")
		return
	}
	switch m.Kind {
	case core.MsgConnect:
		if m.Connect.APIKey != sess.srv.apiKey {
			sess.respond(m.RequestID, codeUnauthorized, "invalid api key")
			return
		}
		sess.authed = true
		sess.respond(m.RequestID, codeOK, "")
	case core.MsgTripleUpdate:
		sess.handleUpdate(ctx, m)
	case core.MsgQuery:
		sess.handleQuery(ctx, m)
	case core.MsgSubscribe:
		sess.srv.mu.Lock()
		sess.subs[m.Subscribe.SubscriptionID] = true
		sess.srv.mu.Unlock()
		sess.respond(m.RequestID, codeOK, "")
	case core.MsgUnsubscribe:
		sess.srv.mu.Lock()
		delete(sess.subs, m.Unsubscribe.SubscriptionID)
		sess.srv.mu.Unlock()
		sess.respond(m.RequestID, codeOK, "")
	default:
		sess.respond(m.RequestID, codeBadRequest, "unknown request kind")
	}
}

func (sess *session) handleUpdate(ctx context.Context, m *core.ClientMessage) {
	store := sess.srv.store
	for _, t := range m.Update.Triples {
		if !t.HasValue {
			store.Retract(t.Entity, t.Attr, t.Stamp)
			continue
		}
		if err := store.Add(ctx, core.WireToFact(t)); err != nil {
			sess.respond(m.RequestID, codeInternal, err.Error())
			return
		}
	}
	sess.respond(m.RequestID, codeOK, "")
	sess.srv.broadcast(m.Update.Triples)
}

func (sess *session) handleQuery(ctx context.Context, m *core.ClientMessage) {
	q := core.QueryFromWire(m.Query)
	rows, err := sess.srv.store.Query(ctx, q)
	if err != nil {
		sess.respond(m.RequestID, codeInternal, err.Error())
		return
	}
	resp := &core.Response{
		RequestID: m.RequestID,
		Columns:   uint16(len(q.Find)),
		Rows:      rows,
	}
	sess.send(&core.ServerMessage{Kind: core.MsgResponse, Response: resp})
}

// broadcast pushes committed changes to every session for every
// subscription it holds.
func (s *Server) broadcast(changes []core.WireTriple) {
	type target struct {
		sess *session
		id   core.ID
	}
	s.mu.Lock()
	var targets []target
	for sess := range s.sessions {
		for id := range sess.subs {
			targets = append(targets, target{sess, id})
		}
	}
	s.mu.Unlock()
	for _, t := range targets {
		t.sess.send(&core.ServerMessage{
			Kind: core.MsgSubscriptionUpdate,
			Update: &core.SubscriptionUpdate{
				SubscriptionID: t.id,
				Changes:        changes,
			},
		})
	}
}

func (sess *session) respond(requestID uint32, code uint16, message string) {
	resp := &core.Response{
		RequestID: requestID,
		Code:      code,
		Message:   message,
	}
	sess.send(&core.ServerMessage{Kind: core.MsgResponse, Response: resp})
}

func (sess *session) send(m *core.ServerMessage) {
	frame, err := core.EncodeServerMessage(m)
	if err != nil {
		sess.srv.log.WithError(err).Error("encode server message")
		return
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		sess.srv.log.WithError(err).Debug("write to session failed")
	}
}
