package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cosmicds/cosmicds/internal/measurement"
	"github.com/cosmicds/cosmicds/internal/value"
)

const tracerName = "github.com/cosmicds/cosmicds/internal/remote"

// DefaultTimeout bounds each call when the caller's context has no
// deadline of its own.
const DefaultTimeout = 10 * time.Second

// maxReplySize caps how much of a reply body is read.
const maxReplySize = 8 << 20

// HTTPClient implements Client against the JSON HTTP API at a base URL.
type HTTPClient struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	tracer  trace.Tracer
}

var _ Client = (*HTTPClient)(nil)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) { h.timeout = d }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) HTTPOption {
	return func(h *HTTPClient) {
		if tp != nil {
			h.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", baseURL)
	}

	h := &HTTPClient{
		base:    u,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// BaseURL returns the API root.
func (h *HTTPClient) BaseURL() string { return h.base.String() }

func (h *HTTPClient) endpoint(parts ...string) string {
	u := *h.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(parts, "/")
	u.RawPath = strings.TrimRight(h.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

func (h *HTTPClient) storyStatePath(studentID int64, story string) string {
	return h.endpoint("story-state", strconv.FormatInt(studentID, 10), story)
}

// FetchStoryState implements Client.
func (h *HTTPClient) FetchStoryState(ctx context.Context, studentID int64, story string) (obj value.Object, err error) {
	ctx, end := h.start(ctx, OpFetchStoryState,
		attribute.Int64("cosmicds.student_id", studentID),
		attribute.String("cosmicds.story", story))
	defer func() { end(err) }()

	body, err := h.do(ctx, OpFetchStoryState, http.MethodGet, h.storyStatePath(studentID, story), nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		State json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &NetworkError{Op: OpFetchStoryState, Err: fmt.Errorf("malformed reply: %w", err)}
	}
	raw := bytes.TrimSpace(envelope.State)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	obj, err = value.DecodeObject(raw)
	if err != nil {
		return nil, &SerializationError{Op: OpFetchStoryState, Err: err}
	}
	return obj, nil
}

// WriteStoryState implements Client.
func (h *HTTPClient) WriteStoryState(ctx context.Context, studentID int64, story string, state value.Object) (err error) {
	ctx, end := h.start(ctx, OpWriteStoryState,
		attribute.Int64("cosmicds.student_id", studentID),
		attribute.String("cosmicds.story", story))
	defer func() { end(err) }()

	payload, err := value.MarshalCanonical(state)
	if err != nil {
		return &SerializationError{Op: OpWriteStoryState, Err: err}
	}
	_, err = h.do(ctx, OpWriteStoryState, http.MethodPut, h.storyStatePath(studentID, story), payload)
	return err
}

// NewDummyStudent implements Client.
func (h *HTTPClient) NewDummyStudent(ctx context.Context, seed bool, teamMember *int64) (ref StudentRef, err error) {
	ctx, end := h.start(ctx, OpNewDummyStudent, attribute.Bool("cosmicds.seed", seed))
	defer func() { end(err) }()

	payload, err := json.Marshal(NewStudentRequest{Seed: seed, TeamMember: teamMember})
	if err != nil {
		return StudentRef{}, &SerializationError{Op: OpNewDummyStudent, Err: err}
	}
	body, err := h.do(ctx, OpNewDummyStudent, http.MethodPost, h.endpoint("new-dummy-student"), payload)
	if err != nil {
		return StudentRef{}, err
	}

	var envelope struct {
		Student *StudentRef `json:"student"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return StudentRef{}, &NetworkError{Op: OpNewDummyStudent, Err: fmt.Errorf("malformed reply: %w", err)}
	}
	if envelope.Student == nil {
		return StudentRef{}, &SerializationError{Op: OpNewDummyStudent, Err: errors.New("reply has no student")}
	}
	return *envelope.Student, nil
}

// SubmitMeasurement implements Client.
func (h *HTTPClient) SubmitMeasurement(ctx context.Context, p measurement.Payload) (err error) {
	ctx, end := h.start(ctx, OpSubmitMeasurement, attribute.Int64("cosmicds.student_id", p.StudentID))
	defer func() { end(err) }()

	payload, err := json.Marshal(p)
	if err != nil {
		return &SerializationError{Op: OpSubmitMeasurement, Err: err}
	}
	_, err = h.do(ctx, OpSubmitMeasurement, http.MethodPut, h.endpoint("submit-measurement"), payload)
	return err
}

// start opens a span for op and returns a function that closes it with
// the outcome.
func (h *HTTPClient) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := h.tracer.Start(ctx, "remote."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// do performs one request and returns the reply body of a 2xx response.
func (h *HTTPClient) do(ctx context.Context, op, method, target string, payload []byte) ([]byte, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read reply: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: replyError(body)}
	}
	return body, nil
}

// replyError extracts the server's error message, if any.
func replyError(body []byte) error {
	var reply struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &reply) == nil && reply.Error != "" {
		return errors.New(reply.Error)
	}
	return nil
}
