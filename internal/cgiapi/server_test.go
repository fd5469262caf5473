package cgiapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messagenet/evodispatch/internal/extern/memory"
)

func TestServerServesGETQueryString(t *testing.T) {
	store := memory.New()
	h, _, _, _ := newTestHandler(t, store)
	srv := NewServer(h)

	req := httptest.NewRequest(http.MethodGet, "/?foo=1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, responseUnknownAction, rec.Body.String())
}

func TestServerServesPOSTBody(t *testing.T) {
	store := memory.New()
	h, _, _, _ := newTestHandler(t, store)
	srv := NewServer(h)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("foo=1"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, responseUnknownAction, rec.Body.String())
}

func TestServerRejectsOtherMethods(t *testing.T) {
	store := memory.New()
	h, _, _, _ := newTestHandler(t, store)
	srv := NewServer(h)

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, responseUnknownAction, rec.Body.String())
}
