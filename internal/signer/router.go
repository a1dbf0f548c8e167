package signer

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/privilegehq/satsgate/internal/settlement"
)

// Callback events reported by the signing agent.
const (
	EventConfirmed = "confirmed"
	EventCancelled = "cancelled"
)

// Callback is the payload the signing agent posts back to us.
type Callback struct {
	RequestID string `json:"requestId" binding:"required"`
	Event     string `json:"event" binding:"required"`
	TxID      string `json:"txid,omitempty"`
}

// CallbackRouter matches agent callbacks to in-flight submissions.
// Each request ID is honored at most once; repeats and unknown IDs are
// dropped, since the settlement layer may have already settled the attempt.
type CallbackRouter struct {
	mu      sync.Mutex
	pending map[string]settlement.Callbacks
	logger  *slog.Logger
}

// NewCallbackRouter creates an empty router.
func NewCallbackRouter() *CallbackRouter {
	return &CallbackRouter{
		pending: make(map[string]settlement.Callbacks),
		logger:  slog.Default(),
	}
}

func (r *CallbackRouter) register(requestID string, cb settlement.Callbacks) {
	r.mu.Lock()
	r.pending[requestID] = cb
	r.mu.Unlock()
}

func (r *CallbackRouter) drop(requestID string) {
	r.mu.Lock()
	delete(r.pending, requestID)
	r.mu.Unlock()
}

func (r *CallbackRouter) take(requestID string) (settlement.Callbacks, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	return cb, ok
}

// Pending reports the number of submissions still waiting for a callback.
func (r *CallbackRouter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Handle is the gin handler for the agent's callback endpoint.
func (r *CallbackRouter) Handle(c *gin.Context) {
	var cb Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid callback payload"})
		return
	}

	callbacks, ok := r.take(cb.RequestID)
	if !ok {
		// Late or duplicate callback. The attempt already settled.
		callbacksTotal.WithLabelValues(cb.Event, "unmatched").Inc()
		r.logger.Debug("unmatched signer callback", "requestID", cb.RequestID, "event", cb.Event)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	switch cb.Event {
	case EventConfirmed:
		callbacksTotal.WithLabelValues(cb.Event, "routed").Inc()
		callbacks.OnConfirmed(cb.TxID)
	case EventCancelled:
		callbacksTotal.WithLabelValues(cb.Event, "routed").Inc()
		callbacks.OnCancelled()
	default:
		callbacksTotal.WithLabelValues(cb.Event, "unknown").Inc()
		r.logger.Warn("unknown signer callback event", "requestID", cb.RequestID, "event", cb.Event)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
