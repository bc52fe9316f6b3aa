// Package natsapi serves the validation engine over NATS request/reply.
//
// Two subjects are served under a configurable prefix:
//
//	<prefix>.validate  contract.Request       -> Reply{Result}
//	<prefix>.batch     BatchRequest           -> Reply{Results}
//
// Subscriptions join a queue group so several engine instances share load.
package natsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/defcheck/cleaning"
	"github.com/c360studio/defcheck/contract"
)

// Defaults used when Options leave them empty.
const (
	DefaultPrefix  = "defcheck"
	DefaultQueue   = "defcheck-workers"
	DefaultTimeout = 30 * time.Second
)

// Error codes carried in ReplyError.Code.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeContractViolation = "contract_violation"
	ErrCodeCancelled         = "cancelled"
	ErrCodeInternal          = "internal"
)

// Validator is the orchestrator surface served over NATS.
type Validator interface {
	Validate(ctx context.Context, req contract.Request) (*contract.Result, error)
	BatchValidate(ctx context.Context, items []contract.Request, maxConcurrency int) ([]*contract.Result, error)
}

// Subscriber creates queue subscriptions. *nats.Conn implements it.
type Subscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Options configures a Server.
type Options struct {
	Prefix  string
	Queue   string
	Timeout time.Duration
}

// BatchRequest is the payload of <prefix>.batch.
type BatchRequest struct {
	Items          []contract.Request `json:"items"`
	MaxConcurrency int                `json:"max_concurrency,omitempty"`
}

// ReplyError describes a request that produced no result.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Reply is the envelope sent back on every request.
type Reply struct {
	Result  *contract.Result   `json:"result,omitempty"`
	Results []*contract.Result `json:"results,omitempty"`
	Error   *ReplyError        `json:"error,omitempty"`
}

// Server answers validation requests received over NATS.
type Server struct {
	validator Validator
	opts      Options
	logger    *slog.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a Server.
func NewServer(v Validator, opts Options, logger *slog.Logger) *Server {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{validator: v, opts: opts, logger: logger}
}

// ValidateSubject returns the single-request subject.
func (s *Server) ValidateSubject() string { return s.opts.Prefix + ".validate" }

// BatchSubject returns the batch subject.
func (s *Server) BatchSubject() string { return s.opts.Prefix + ".batch" }

// Start subscribes both subjects. In-flight requests are cancelled when ctx
// is done or Stop is called.
func (s *Server) Start(ctx context.Context, conn Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("natsapi server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	routes := []struct {
		subject string
		handle  func(context.Context, []byte) Reply
	}{
		{s.ValidateSubject(), s.HandleValidate},
		{s.BatchSubject(), s.HandleBatch},
	}
	for _, r := range routes {
		sub, err := conn.QueueSubscribe(r.subject, s.opts.Queue, s.msgHandler(r.handle))
		if err != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", r.subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info("NATS API listening",
		"validate", s.ValidateSubject(),
		"batch", s.BatchSubject(),
		"queue", s.opts.Queue)
	return nil
}

// Stop unsubscribes and cancels in-flight requests.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked()
}

func (s *Server) unsubscribeLocked() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}
	s.subs = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Server) msgHandler(handle func(context.Context, []byte) Reply) nats.MsgHandler {
	return func(msg *nats.Msg) {
		s.mu.Lock()
		base := s.ctx
		s.mu.Unlock()
		if base == nil {
			base = context.Background()
		}

		ctx, cancel := context.WithTimeout(base, s.opts.Timeout)
		defer cancel()

		data := msg.Data
		if id := msg.Header.Get(cleaning.CorrelationHeader); id != "" && msg.Subject == s.ValidateSubject() {
			data = withCorrelationID(data, id)
		}

		out, err := json.Marshal(handle(ctx, data))
		if err != nil {
			s.logger.Error("Failed to marshal reply", "subject", msg.Subject, "error", err)
			return
		}
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(out); err != nil {
			s.logger.Warn("Failed to respond", "subject", msg.Subject, "error", err)
		}
	}
}

// HandleValidate processes one <prefix>.validate payload.
func (s *Server) HandleValidate(ctx context.Context, data []byte) Reply {
	var req contract.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorReply(ErrCodeBadRequest, "invalid request: "+err.Error(), "")
	}
	res, err := s.validator.Validate(ctx, req)
	if err != nil {
		return s.failure(err)
	}
	return Reply{Result: res}
}

// HandleBatch processes one <prefix>.batch payload.
func (s *Server) HandleBatch(ctx context.Context, data []byte) Reply {
	var req BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorReply(ErrCodeBadRequest, "invalid request: "+err.Error(), "")
	}
	results, err := s.validator.BatchValidate(ctx, req.Items, req.MaxConcurrency)
	if err != nil {
		return s.failure(err)
	}
	if results == nil {
		results = []*contract.Result{}
	}
	return Reply{Results: results}
}

func (s *Server) failure(err error) Reply {
	var cv *contract.ContractViolation
	switch {
	case errors.As(err, &cv):
		return errorReply(ErrCodeContractViolation, cv.Error(), cv.Field)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorReply(ErrCodeCancelled, "request cancelled", "")
	default:
		s.logger.Error("Validation request failed", "error", err)
		return errorReply(ErrCodeInternal, "internal error", "")
	}
}

func errorReply(code, message, field string) Reply {
	return Reply{Error: &ReplyError{Code: code, Message: message, Field: field}}
}

// withCorrelationID fills context.correlation_id from the message header
// when the payload does not carry one. Payloads that are not JSON objects
// are returned unchanged.
func withCorrelationID(data []byte, id string) []byte {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return data
	}

	var vctx map[string]any
	if raw, ok := doc["context"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &vctx); err != nil {
			return data
		}
	}
	if vctx == nil {
		vctx = map[string]any{}
	}
	if existing, _ := vctx["correlation_id"].(string); existing != "" {
		return data
	}
	vctx["correlation_id"] = id

	raw, err := json.Marshal(vctx)
	if err != nil {
		return data
	}
	doc["context"] = raw
	out, err := json.Marshal(doc)
	if err != nil {
		return data
	}
	return out
}
