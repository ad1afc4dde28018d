package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"type": "object",
	"required": ["email", "amount"],
	"additionalProperties": false,
	"properties": {
		"email":  {"type": "string", "minLength": 3},
		"amount": {"type": "integer", "exclusiveMinimum": 0}
	}
}`

func newTestValidator(t *testing.T) *JSONSchemaValidator {
	t.Helper()
	v, err := NewJSONSchemaValidator(testSchema)
	require.NoError(t, err)
	return v
}

func passthrough() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestValidatorAcceptsValidBody(t *testing.T) {
	v := newTestValidator(t)
	next, called := passthrough()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","amount":100}`))
	rec := httptest.NewRecorder()
	v.Middleware(next).ServeHTTP(rec, req)

	assert.True(t, *called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidatorRejectsSchemaViolation(t *testing.T) {
	v := newTestValidator(t)
	next, called := passthrough()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","amount":0}`))
	rec := httptest.NewRecorder()
	v.Middleware(next).ServeHTTP(rec, req)

	assert.False(t, *called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestValidatorRejectsMalformedJSON(t *testing.T) {
	v := newTestValidator(t)
	next, called := passthrough()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
	rec := httptest.NewRecorder()
	v.Middleware(next).ServeHTTP(rec, req)

	assert.False(t, *called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}

func TestValidatorReplaysBody(t *testing.T) {
	v := newTestValidator(t)
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 1024)
		n, _ := r.Body.Read(b)
		got = string(b[:n])
	})

	body := `{"email":"a@b.c","amount":5}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	v.Middleware(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, body, got)
}

func TestBodySizeLimitRejectsOversized(t *testing.T) {
	v := newTestValidator(t)
	next, called := passthrough()

	big := `{"email":"` + strings.Repeat("x", 256) + `","amount":1}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	rec := httptest.NewRecorder()
	BodySizeLimit(64)(v.Middleware(next)).ServeHTTP(rec, req)

	assert.False(t, *called)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
