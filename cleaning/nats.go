package cleaning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/defcheck/telemetry"
)

// CorrelationHeader carries the correlation ID on NATS messages.
const CorrelationHeader = "Correlation-Id"

// Requester is the subset of *nats.Conn used by NATSCleaner.
type Requester interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// CleanRequest is the payload sent to a remote cleaning service.
type CleanRequest struct {
	Begrip string `json:"begrip"`
	Text   string `json:"text"`
}

// CleanReply is the payload expected back.
type CleanReply struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// RemoteError is an error reported by the remote cleaning service.
type RemoteError struct {
	Subject string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("cleaning service %s: %s", e.Subject, e.Message)
}

// NATSCleaner delegates cleaning to a service over NATS request/reply.
type NATSCleaner struct {
	conn    Requester
	subject string
}

// NewNATSCleaner creates a cleaner that sends requests to subject.
func NewNATSCleaner(conn Requester, subject string) *NATSCleaner {
	return &NATSCleaner{conn: conn, subject: subject}
}

// Clean implements Cleaner. The deadline comes from ctx.
func (c *NATSCleaner) Clean(ctx context.Context, text, begrip string) (string, error) {
	data, err := json.Marshal(CleanRequest{Begrip: begrip, Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal clean request: %w", err)
	}

	msg := nats.NewMsg(c.subject)
	msg.Data = data
	if id := telemetry.CorrelationID(ctx); id != "" {
		msg.Header.Set(CorrelationHeader, id)
	}

	resp, err := c.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", ctxErr
		}
		return "", fmt.Errorf("request %s: %w", c.subject, err)
	}

	var reply CleanReply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		return "", fmt.Errorf("decode clean reply: %w", err)
	}
	if reply.Error != "" {
		return "", &RemoteError{Subject: c.subject, Message: reply.Error}
	}
	if reply.Text == "" {
		return "", ErrEmptyResult
	}
	return reply.Text, nil
}
