package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// Handler processes one inbound response. It receives the sender's canonical
// identifier, the message body, and the timestamp, and reports whether it
// handled the message.
type Handler func(ctx context.Context, from, body string, timestamp int64) (handled bool, err error)

// MessageLog records inbound responses and delivery receipts. Satisfied by
// store.Store; the router only needs the append operations.
type MessageLog interface {
	AddResponse(r models.Response) error
	AddReceipt(r models.Receipt) error
}

// ResponseRouter drains a Service's response and receipt channels. Responses
// are logged and dispatched to the registered handler; when no handler claims
// a message, a default reply is sent.
type ResponseRouter struct {
	service        Service
	log            MessageLog
	handler        Handler
	defaultMessage string
}

// RouterOption configures a ResponseRouter.
type RouterOption func(*ResponseRouter)

// WithMessageLog records every inbound response and receipt in the given log.
func WithMessageLog(log MessageLog) RouterOption {
	return func(r *ResponseRouter) { r.log = log }
}

// WithDefaultMessage overrides the reply sent when no handler claims a
// message.
func WithDefaultMessage(msg string) RouterOption {
	return func(r *ResponseRouter) { r.defaultMessage = msg }
}

// NewResponseRouter creates a router for the given messaging service.
func NewResponseRouter(service Service, opts ...RouterOption) *ResponseRouter {
	r := &ResponseRouter{
		service:        service,
		defaultMessage: "There is nothing in progress for this number. Your setup link arrives after enrollment.",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetHandler registers the function inbound responses are dispatched to.
func (r *ResponseRouter) SetHandler(h Handler) {
	r.handler = h
}

// ProcessResponse routes one inbound response: canonicalize the sender, log
// it, dispatch to the handler, and fall back to the default reply when the
// handler does not claim it.
func (r *ResponseRouter) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := r.service.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseRouter.ProcessResponse: sender validation failed", "error", err, "from", response.From)
		return err
	}
	response.From = canonicalFrom

	if r.log != nil {
		if err := r.log.AddResponse(response); err != nil {
			slog.Error("ResponseRouter.ProcessResponse: failed to log response", "error", err, "from", canonicalFrom)
		}
	}

	if r.handler != nil {
		handled, err := r.handler(ctx, canonicalFrom, response.Body, response.Time)
		if err != nil {
			slog.Error("ResponseRouter.ProcessResponse: handler failed", "error", err, "from", canonicalFrom)
			return err
		}
		if handled {
			slog.Debug("ResponseRouter.ProcessResponse: handled", "from", canonicalFrom)
			return nil
		}
	}

	slog.Debug("ResponseRouter.ProcessResponse: no handler claimed message, sending default reply", "from", canonicalFrom)
	if err := r.service.SendMessage(ctx, canonicalFrom, r.defaultMessage); err != nil {
		slog.Error("ResponseRouter.ProcessResponse: failed to send default reply", "error", err, "from", canonicalFrom)
		return err
	}
	return nil
}

// Start begins draining the service's channels until the context is
// cancelled or the channels close.
func (r *ResponseRouter) Start(ctx context.Context) {
	slog.Info("ResponseRouter starting")

	go func() {
		defer slog.Info("ResponseRouter stopped")

		receipts := r.service.Receipts()
		responses := r.service.Responses()

		for {
			select {
			case response, ok := <-responses:
				if !ok {
					slog.Debug("ResponseRouter responses channel closed")
					return
				}
				if err := r.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseRouter failed to process response", "error", err, "from", response.From)
				}

			case receipt, ok := <-receipts:
				if !ok {
					slog.Debug("ResponseRouter receipts channel closed")
					receipts = nil
					continue
				}
				if r.log != nil {
					if err := r.log.AddReceipt(receipt); err != nil {
						slog.Error("ResponseRouter failed to log receipt", "error", err, "to", receipt.To)
					}
				}

			case <-ctx.Done():
				slog.Debug("ResponseRouter stopping due to context cancellation")
				return
			}
		}
	}()
}
