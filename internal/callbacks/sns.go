// Package callbacks receives inbound notifications from upstream services.
// Bodies arrive through the text route family, so the raw payload is
// interpreted here rather than by the body decoder.
package callbacks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/apiedge/internal/apierr"
	"github.com/keithlinneman/apiedge/internal/body"
	"github.com/keithlinneman/apiedge/internal/httpmw"
	"github.com/keithlinneman/apiedge/internal/log"
)

// SNS message types.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Message is the SNS HTTP delivery envelope.
type Message struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion,omitempty"`
	SigningCertURL   string `json:"SigningCertURL,omitempty"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	Token            string `json:"Token,omitempty"`
}

type SNSOptions struct {
	// OnNotification receives every Notification. A returned error is
	// resolved by the error chain like any handler error.
	OnNotification func(ctx context.Context, m Message) error
	// OnAccepted is told about every accepted message, e.g. for metrics.
	OnAccepted func(source, msgType string)
}

type SNS struct {
	opts SNSOptions
}

func NewSNS(opts SNSOptions) *SNS {
	return &SNS{opts: opts}
}

// RegisterRoutes mounts POST /callbacks/sns on r.
func (s *SNS) RegisterRoutes(r chi.Router) {
	r.With(httpmw.Scope("callbacks.sns")).Method(http.MethodPost, "/callbacks/sns", apierr.HandlerFunc(s.receive))
}

var errNotText = apierr.NewDomain(http.StatusUnsupportedMediaType, "unsupported_media_type", "Callback body must be JSON text")

func (s *SNS) receive(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	dec, ok := body.FromContext(ctx)
	if !ok || dec.Kind != body.KindText {
		return errNotText
	}

	var m Message
	if err := json.Unmarshal([]byte(dec.Text), &m); err != nil {
		return &apierr.ValidationError{Detail: "callback body is not a JSON object", Err: err}
	}
	if err := validate(m, r.Header.Get(httpmw.SNSMessageTypeHeader)); err != nil {
		return err
	}

	L := log.FromContext(ctx).With("sns.message_id", m.MessageID, "sns.topic_arn", m.TopicArn, "sns.type", m.Type)
	switch m.Type {
	case TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		// the token is a credential for confirming the subscription
		L.Info(ctx, "sns subscription message received", "sns.subscribe_url", m.SubscribeURL)
	case TypeNotification:
		if s.opts.OnNotification != nil {
			if err := s.opts.OnNotification(ctx, m); err != nil {
				return err
			}
		}
		L.Debug(ctx, "sns notification accepted")
	}

	if s.opts.OnAccepted != nil {
		s.opts.OnAccepted("sns", m.Type)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func validate(m Message, headerType string) error {
	switch m.Type {
	case TypeNotification, TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
	case "":
		return &apierr.ValidationError{Detail: "Type is required"}
	default:
		return &apierr.ValidationError{Detail: "unsupported message Type " + m.Type}
	}
	if headerType != "" && headerType != m.Type {
		return &apierr.ValidationError{Detail: "message type header does not match body Type"}
	}
	if m.MessageID == "" || m.TopicArn == "" {
		return &apierr.ValidationError{Detail: "MessageId and TopicArn are required"}
	}
	if m.Type != TypeNotification && m.SubscribeURL == "" {
		return &apierr.ValidationError{Detail: "SubscribeURL is required for " + m.Type}
	}
	return nil
}
