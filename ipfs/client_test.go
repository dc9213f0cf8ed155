package ipfs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBytesReturnsLastHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/add", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("pin"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		body, _ := io.ReadAll(file)
		assert.Equal(t, "meta.json", header.Filename)
		assert.Equal(t, `{"name":"x"}`, string(body))
		_, _ = io.WriteString(w, `{"Name":"meta.json","Hash":"bafyfirst"}`+"\n"+`{"Name":"","Hash":"bafyroot"}`+"\n")
	}))
	defer srv.Close()

	cid, err := NewClient(srv.URL+"/", 0).AddBytes(context.Background(), "meta.json", []byte(`{"name":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "bafyroot", cid)
	assert.Equal(t, "ipfs://bafyroot", URI(cid))
}

func TestAddBytesSurfacesNodeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "repo locked", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).AddBytes(context.Background(), "a", []byte("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repo locked")
}

func TestCatStripsScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bafyroot", r.URL.Query().Get("arg"))
		_, _ = io.WriteString(w, "hello")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	data, err := c.Cat(context.Background(), "ipfs://bafyroot")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = c.Cat(context.Background(), " ")
	require.Error(t, err)
}
