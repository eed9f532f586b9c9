// Package control serves a small HTTP endpoint for one running emulator
// session: a JSON status snapshot and raw command injection. It stands in
// for a local control panel during integration runs.
package control

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/metwx/metemu/internal/log"
	"github.com/metwx/metemu/internal/session"
)

// maxInjectBytes bounds one injected command frame.
const maxInjectBytes = 4096

// Snapshot returns a JSON-serialisable view of the device; it is invoked
// under the session mutex.
type Snapshot func() interface{}

// Controller is the HTTP control endpoint for one session.
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	session  *session.Session
	snapshot Snapshot
	Server   http.Server
}

// NewController builds the endpoint listening on addr.
func NewController(ctx context.Context, wg *sync.WaitGroup, addr string, sess *session.Session, snapshot Snapshot) *Controller {
	c := &Controller{
		ctx:      ctx,
		wg:       wg,
		session:  sess,
		snapshot: snapshot,
	}
	c.Server.Addr = addr
	c.Server.Handler = c.setupRouter()
	c.Server.ReadHeaderTimeout = 5 * time.Second
	return c
}

// StartController starts serving and arranges shutdown on context
// cancellation.
func (c *Controller) StartController() error {
	log.Infof("Starting control endpoint on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("control endpoint error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the control endpoint...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/status", c.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/inject", c.handleInject).Methods(http.MethodPost)
	return router
}

// handleStatus returns the session ID and a device snapshot taken under
// the session mutex.
func (c *Controller) handleStatus(w http.ResponseWriter, r *http.Request) {
	var device interface{}
	c.session.WithLock(func() {
		device = c.snapshot()
	})

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id": c.session.ID,
		"device":     device,
	})
	if err != nil {
		log.Errorf("encoding status response: %v", err)
	}
}

// handleInject feeds the posted body into the session's command path as
// if it had arrived on the wire.
func (c *Controller) handleInject(w http.ResponseWriter, r *http.Request) {
	frame, err := io.ReadAll(io.LimitReader(r.Body, maxInjectBytes))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}
	if len(frame) == 0 {
		http.Error(w, "empty command frame", http.StatusBadRequest)
		return
	}

	c.session.Inject(frame)
	w.WriteHeader(http.StatusAccepted)
}
