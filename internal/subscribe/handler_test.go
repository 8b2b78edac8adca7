package subscribe

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3-csv-email-writer/internal/ledger"
	"s3-csv-email-writer/internal/logger"
	"s3-csv-email-writer/internal/notify"
)

type bucket struct {
	body   []byte
	exists bool
	err    error
}

func (b *bucket) Get(context.Context) (*ledger.Object, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.exists {
		return nil, ledger.ErrNotFound
	}
	return &ledger.Object{Body: append([]byte(nil), b.body...)}, nil
}

func (b *bucket) Put(_ context.Context, body []byte, _ *ledger.Object) error {
	if b.err != nil {
		return b.err
	}
	b.body = append([]byte(nil), body...)
	b.exists = true
	return nil
}

type fakePublisher struct {
	err  error
	subs []notify.Subscription
}

func (p *fakePublisher) Publish(_ context.Context, sub notify.Subscription) error {
	p.subs = append(p.subs, sub)
	return p.err
}

func fixedClock(t *testing.T) func() time.Time {
	loc, err := ledger.Paris()
	require.NoError(t, err)
	at := time.Date(2025, 1, 14, 10, 0, 0, 0, loc)
	return func() time.Time { return at }
}

func newHandler(t *testing.T, b *bucket, opts ...Option) *Handler {
	t.Helper()
	loc, err := ledger.Paris()
	require.NoError(t, err)

	l := ledger.New(b, loc, ledger.WithLogger(logger.Discard()))
	opts = append([]Option{WithClock(fixedClock(t)), WithLogger(logger.Discard())}, opts...)
	return New(l, opts...)
}

func post(body string) Request {
	return Request{ID: "req-1", Method: http.MethodPost, Body: body}
}

func TestHandle_RejectsNonPost(t *testing.T) {
	b := &bucket{}
	h := newHandler(t, b)

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions, "post"} {
		resp := h.Handle(context.Background(), Request{Method: m, Body: `{"email":"x@y.com"}`})
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, m)
		assert.JSONEq(t, `{"error":"Method not allowed"}`, resp.Body)
	}
	assert.False(t, b.exists)
}

func TestHandle_RejectsInvalidBody(t *testing.T) {
	bodies := []string{
		"not json",
		"",
		"{}",
		"null",
		"[]",
		`{"email":""}`,
		`{"email":"   "}`,
		`{"email":42}`,
		`{"email":null}`,
		`{"mail":"x@y.com"}`,
		`{"email":"x@y.com"} trailing`,
	}

	b := &bucket{}
	h := newHandler(t, b)
	for _, body := range bodies {
		resp := h.Handle(context.Background(), post(body))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
		assert.JSONEq(t, `{"error":"Invalid request body"}`, resp.Body)
	}
	assert.False(t, b.exists)
}

func TestHandle_CreatesLedger(t *testing.T) {
	b := &bucket{}
	h := newHandler(t, b)

	resp := h.Handle(context.Background(), post(`{"email":"x@y.com"}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Successfully subscribed to newsletter"}`, resp.Body)
	assert.Equal(t, "datetime,email\nTue Jan 14 10:00:00 2025,x@y.com\n", string(b.body))
}

func TestHandle_AppendsToExistingLedger(t *testing.T) {
	existing := "datetime,email\n" +
		"Mon Jan 13 08:00:00 2025,a@example.com\n" +
		"Mon Jan 13 09:00:00 2025,b@example.com\n"
	b := &bucket{body: []byte(existing), exists: true}
	h := newHandler(t, b)

	for i := 0; i < 2; i++ {
		resp := h.Handle(context.Background(), post(`{"email":"a@example.com"}`))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	got := string(b.body)
	assert.True(t, strings.HasPrefix(got, existing))
	assert.Equal(t, existing+
		"Tue Jan 14 10:00:00 2025,a@example.com\n"+
		"Tue Jan 14 10:00:00 2025,a@example.com\n", got)
}

func TestHandle_StorageFailure(t *testing.T) {
	b := &bucket{err: errors.New("get test/newsletter_register.csv: AccessDenied")}
	h := newHandler(t, b)

	resp := h.Handle(context.Background(), post(`{"email":"x@y.com"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"get test/newsletter_register.csv: AccessDenied"}`, resp.Body)
}

func TestHandle_Publishes(t *testing.T) {
	b := &bucket{}
	pub := &fakePublisher{}
	h := newHandler(t, b, WithPublisher(pub))

	resp := h.Handle(context.Background(), post(`{"email":" x@y.com "}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, pub.subs, 1)
	assert.Equal(t, "x@y.com", pub.subs[0].Email)
	assert.NotEmpty(t, pub.subs[0].ID)
	assert.True(t, fixedClock(t)().Equal(pub.subs[0].SubscribedAt))
}

func TestHandle_PublishFailureStillSucceeds(t *testing.T) {
	b := &bucket{}
	pub := &fakePublisher{err: errors.New("bus unavailable")}
	h := newHandler(t, b, WithPublisher(pub))

	resp := h.Handle(context.Background(), post(`{"email":"x@y.com"}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, b.exists)
}

func TestHandle_NoPublishOnFailure(t *testing.T) {
	pub := &fakePublisher{}
	h := newHandler(t, &bucket{err: errors.New("down")}, WithPublisher(pub))

	h.Handle(context.Background(), post(`{"email":"x@y.com"}`))
	h.Handle(context.Background(), post(`not json`))
	assert.Empty(t, pub.subs)
}

func TestHandleAPIGateway(t *testing.T) {
	b := &bucket{}
	h := newHandler(t, b)

	tests := []struct {
		name   string
		req    events.APIGatewayProxyRequest
		status int
		body   string
	}{
		{
			name:   "plain body",
			req:    events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: `{"email":"x@y.com"}`},
			status: http.StatusOK,
			body:   `{"message":"Successfully subscribed to newsletter"}`,
		},
		{
			name: "base64 body",
			req: events.APIGatewayProxyRequest{
				HTTPMethod:      "POST",
				Body:            base64.StdEncoding.EncodeToString([]byte(`{"email":"z@y.com"}`)),
				IsBase64Encoded: true,
			},
			status: http.StatusOK,
			body:   `{"message":"Successfully subscribed to newsletter"}`,
		},
		{
			name:   "bad base64",
			req:    events.APIGatewayProxyRequest{HTTPMethod: "POST", Body: "%%%", IsBase64Encoded: true},
			status: http.StatusBadRequest,
			body:   `{"error":"Invalid request body"}`,
		},
		{
			name:   "get",
			req:    events.APIGatewayProxyRequest{HTTPMethod: "GET"},
			status: http.StatusMethodNotAllowed,
			body:   `{"error":"Method not allowed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.RequestContext.RequestID = "c6af9ac6-7b61-11e6-9a41-93e8deadbeef"
			resp, err := h.HandleAPIGateway(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.JSONEq(t, tt.body, resp.Body)
			assert.Equal(t, "application/json", resp.Headers["Content-Type"])
		})
	}

	assert.Equal(t, "datetime,email\n"+
		"Tue Jan 14 10:00:00 2025,x@y.com\n"+
		"Tue Jan 14 10:00:00 2025,z@y.com\n", string(b.body))
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "example.com", EmailDomain("a@example.com"))
	assert.Equal(t, "example.com", EmailDomain(`"a@b"@example.com`))
	assert.Equal(t, "", EmailDomain("nobody"))
}
