package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSearchParsesItemsInRankOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "what is diabetes", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("num"))
		assert.Equal(t, "trusted-cx", r.URL.Query().Get("cx"))
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Diabetes - MedlinePlus","snippet":"Diabetes is a disease...","link":"https://medlineplus.gov/diabetes.html"},
			{"title":"Diabetes - Mayo Clinic","snippet":"Overview of diabetes...","link":"https://www.mayoclinic.org/diabetes"},
			{"title":"No link item","snippet":"dropped",                    "link":""}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL}, zaptest.NewLogger(t))
	results, err := c.Search(context.Background(), "what is diabetes", 5, "trusted-cx")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "Diabetes - MedlinePlus", results[0].Title)
	assert.Equal(t, 2, results[1].Rank)
}

func TestSearchEmptyItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL}, zaptest.NewLogger(t))
	results, err := c.Search(context.Background(), "anything", 5, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchHTTPErrorReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL}, zaptest.NewLogger(t))
	_, err := c.Search(context.Background(), "anything", 5, "")
	assert.Error(t, err)
}

func TestProberReachableAndDeadLinks(t *testing.T) {
	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer dead.Close()

	p := NewProber(time.Second, zaptest.NewLogger(t))
	assert.True(t, p.Probe(context.Background(), alive.URL))
	assert.False(t, p.Probe(context.Background(), dead.URL))
}

func TestProberFallsBackToGETWhenHEADRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(time.Second, zaptest.NewLogger(t))
	assert.True(t, p.Probe(context.Background(), srv.URL))
}
