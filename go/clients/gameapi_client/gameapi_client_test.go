package gameapi_client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcdev12/matchmaker/go/clients"
)

func TestGetPlayerRegionIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/players/ip/42":
			w.Write([]byte(`{"regionIp":"5.6.7.8"}`))
		case "/api/players/ip/43":
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewGameAPIClient(srv.URL)
	ctx := context.Background()

	ip, err := client.GetPlayerRegionIP(ctx, 42)
	if err != nil {
		t.Fatalf("get region ip: %v", err)
	}
	if ip != "5.6.7.8" {
		t.Fatalf("expected 5.6.7.8, got %q", ip)
	}

	if _, err := client.GetPlayerRegionIP(ctx, 43); err == nil {
		t.Fatal("expected an error for an empty region ip")
	}

	_, err = client.GetPlayerRegionIP(ctx, 44)
	var statusErr *clients.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected a 404 status error, got %v", err)
	}
}

func TestUpdatePlayerRatingSendsBareDelta(t *testing.T) {
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		method, path, body = r.Method, r.URL.Path, strings.TrimSpace(string(data))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewGameAPIClient(srv.URL).UpdatePlayerRating(context.Background(), 7, -25); err != nil {
		t.Fatalf("update rating: %v", err)
	}
	if method != http.MethodPut || path != "/api/players/7/rating" || body != "-25" {
		t.Fatalf("unexpected request %s %s %q", method, path, body)
	}
}
