package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/fedtrust/pkg/federation"
)

func TestGetEntityConfiguration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/openid-federation", r.URL.Path)
		w.Write([]byte("header.payload.signature"))
	}))
	defer srv.Close()

	id, err := federation.NewIdentifier(srv.URL)
	require.NoError(t, err)

	f := New(nil, nil)
	token, err := f.GetEntityConfiguration(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "header.payload.signature", token)
}

func TestGetEntityConfigurationHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	id, err := federation.NewIdentifier(srv.URL)
	require.NoError(t, err)

	f := New(nil, nil)
	_, err = f.GetEntityConfiguration(context.Background(), id)
	require.Error(t, err)

	var ferr *federation.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, federation.KindHTTPError, ferr.Kind)
	assert.Equal(t, http.StatusNotFound, ferr.StatusCode)
}

func TestFetchSubordinate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://authority.example.com", r.URL.Query().Get("iss"))
		assert.Equal(t, "https://leaf.example.com", r.URL.Query().Get("sub"))
		w.Write([]byte("a.b.c"))
	}))
	defer srv.Close()

	issuer, err := federation.NewIdentifier("https://authority.example.com")
	require.NoError(t, err)
	sub, err := federation.NewIdentifier("https://leaf.example.com")
	require.NoError(t, err)

	f := New(nil, nil)
	token, err := f.FetchSubordinate(context.Background(), srv.URL+"/fetch", issuer, sub)
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", token)
}
