package callbacks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/apiedge/internal/apierr"
	"github.com/keithlinneman/apiedge/internal/body"
	"github.com/keithlinneman/apiedge/internal/httpmw"
)

const notification = `{
  "Type": "Notification",
  "MessageId": "22b80b92-fdea-4c2c-8f9d-bdfb0c7bf324",
  "TopicArn": "arn:aws:sns:us-west-2:123456789012:orders",
  "Subject": "order",
  "Message": "{\"order\":42}",
  "Timestamp": "2026-10-14T12:00:00.000Z"
}`

type accepted struct {
	source, typ string
}

func newTestHandler(t *testing.T, opts SNSOptions) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/v1", NewSNS(opts).RegisterRoutes)
	return httpmw.Chain(r,
		apierr.Attach(apierr.NewChain(apierr.Options{TraceID: func(context.Context) string { return "" }})),
		body.NewDecoder(body.Options{}).Middleware(nil),
	)
}

func post(h http.Handler, contentType, payload string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/sns", strings.NewReader(payload))
	req.Header.Set("Content-Type", contentType)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) apierr.Envelope {
	t.Helper()
	var env apierr.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSNS_Notification(t *testing.T) {
	var got Message
	var acc []accepted
	h := newTestHandler(t, SNSOptions{
		OnNotification: func(_ context.Context, m Message) error { got = m; return nil },
		OnAccepted:     func(s, typ string) { acc = append(acc, accepted{s, typ}) },
	})

	rec := post(h, "text/plain", notification, map[string]string{httpmw.SNSMessageTypeHeader: "Notification"})

	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, "22b80b92-fdea-4c2c-8f9d-bdfb0c7bf324", got.MessageID)
	assert.Equal(t, `{"order":42}`, got.Message)
	assert.Equal(t, []accepted{{"sns", TypeNotification}}, acc)
}

func TestSNS_SubscriptionConfirmation(t *testing.T) {
	called := false
	h := newTestHandler(t, SNSOptions{OnNotification: func(context.Context, Message) error { called = true; return nil }})

	payload := `{"Type":"SubscriptionConfirmation","MessageId":"m1","TopicArn":"arn:aws:sns:us-west-2:123456789012:orders",
		"Token":"secret-token","SubscribeURL":"https://sns.us-west-2.amazonaws.com/?Action=ConfirmSubscription"}`
	rec := post(h, "application/json", payload, nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called, "confirmations are not notifications")
}

func TestSNS_Rejections(t *testing.T) {
	h := newTestHandler(t, SNSOptions{})

	cases := []struct {
		name    string
		payload string
		hdr     map[string]string
		want    string
	}{
		{"not an object", `[1,2]`, nil, "callback body is not a JSON object"},
		{"missing type", `{"MessageId":"m","TopicArn":"t"}`, nil, "Type is required"},
		{"unknown type", `{"Type":"Nope","MessageId":"m","TopicArn":"t"}`, nil, "unsupported message Type Nope"},
		{"header mismatch", notification, map[string]string{httpmw.SNSMessageTypeHeader: "SubscriptionConfirmation"}, "message type header does not match body Type"},
		{"missing ids", `{"Type":"Notification"}`, nil, "MessageId and TopicArn are required"},
		{"confirmation without url", `{"Type":"SubscriptionConfirmation","MessageId":"m","TopicArn":"t"}`, nil, "SubscribeURL is required for SubscriptionConfirmation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(h, "application/json", tc.payload, tc.hdr)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, apierr.Envelope{Code: apierr.CodeInvalidRequest, Message: tc.want}, envelope(t, rec))
		})
	}
}

func TestSNS_NonTextBody(t *testing.T) {
	h := newTestHandler(t, SNSOptions{})

	rec := post(h, "application/x-www-form-urlencoded", "Type=Notification", nil)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "unsupported_media_type", envelope(t, rec).Code)
}

func TestSNS_NotificationErrorGoesThroughChain(t *testing.T) {
	h := newTestHandler(t, SNSOptions{
		OnNotification: func(context.Context, Message) error {
			return apierr.NewDomain(http.StatusConflict, "duplicate_message", "Message already processed")
		},
	})

	rec := post(h, "text/plain", notification, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierr.Envelope{Code: "duplicate_message", Message: "Message already processed"}, envelope(t, rec))
}

func TestSNS_UnexpectedErrorIsOpaque(t *testing.T) {
	h := newTestHandler(t, SNSOptions{
		OnNotification: func(context.Context, Message) error { return errors.New("queue unavailable") },
	})

	rec := post(h, "text/plain", notification, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "queue unavailable")
}
