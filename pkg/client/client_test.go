package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/saccochain/ledgersync/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

func stubAdminServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Secret string `json:"secret"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Secret != "s3cret" {
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"token": "admin-token-abc"})
	})

	mux.HandleFunc("/api/v1/listener/status", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"isListening":         true,
			"state":               "polling",
			"lastProcessedDigest": "Digest42",
			"network":             "testnet",
		})
	})

	mux.HandleFunc("/api/v1/listener/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer admin-token-abc" {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "listener started"})
	})

	mux.HandleFunc("/api/v1/chain/network", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"chainId": "chain-1", "gasPrice": 1000, "network": "testnet", "packageId": "0xpkg",
		})
	})

	mux.HandleFunc("/api/v1/chain/saccos", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"digest": "RegDigest"})
	})

	mux.HandleFunc("/api/v1/chain/records/", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"records":     []map[string]any{{"ObjectID": "0xrec", "ScoreHash": "abcd"}},
			"nextCursor":  "",
			"hasNextPage": false,
		}
		if r.URL.Query().Get("cursor") == "" {
			resp["nextCursor"] = "cur-1"
			resp["hasNextPage"] = true
		}
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/api/v1/scores/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/verify") {
			json.NewEncoder(w).Encode(map[string]any{
				"verified": true,
				"record":   map[string]any{"ObjectID": "0xrec", "ScoreHash": "abcd"},
			})
			return
		}
		http.NotFound(w, r)
	})

	return httptest.NewServer(mux)
}

func TestLogin_attachesToken(t *testing.T) {
	srv := stubAdminServer(t)
	defer srv.Close()

	c := client.New(srv.URL)
	if err := c.Login(context.Background(), "s3cret"); err != nil {
		t.Fatal(err)
	}
	// start requires the bearer token the login obtained.
	if err := c.StartListener(context.Background()); err != nil {
		t.Errorf("authenticated call failed: %v", err)
	}
}

func TestLogin_badSecret(t *testing.T) {
	srv := stubAdminServer(t)
	defer srv.Close()

	c := client.New(srv.URL)
	err := c.Login(context.Background(), "wrong")
	if err == nil || !strings.Contains(err.Error(), "invalid credentials") {
		t.Errorf("expected credentials error, got %v", err)
	}
}

func TestListenerStatus(t *testing.T) {
	srv := stubAdminServer(t)
	defer srv.Close()

	status, err := client.New(srv.URL).ListenerStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !status.Listening || status.LastProcessedDigest != "Digest42" {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestNetworkInfo(t *testing.T) {
	srv := stubAdminServer(t)
	defer srv.Close()

	info, err := client.New(srv.URL).NetworkInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.ChainID != "chain-1" || info.GasPrice != 1000 {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestRegisterSacco(t *testing.T) {
	srv := stubAdminServer(t)
	defer srv.Close()

	res, err := client.New(srv.URL).RegisterSacco(context.Background(), client.RegisterSaccoRequest{
		SaccoID: "sacco_umoja", Name: "Umoja", LicenseNo: "LIC-001",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Digest != "RegDigest" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestHashRecords_pagination(t *testing.T) {
	srv := stubAdminServer(t)
	defer srv.Close()

	c := client.New(srv.URL)
	page, err := c.HashRecords(context.Background(), "0xabc", "")
	if err != nil {
		t.Fatal(err)
	}
	if !page.HasNextPage || page.NextCursor != "cur-1" {
		t.Fatalf("expected a continuation cursor: %+v", page)
	}

	page, err = c.HashRecords(context.Background(), "0xabc", page.NextCursor)
	if err != nil {
		t.Fatal(err)
	}
	if page.HasNextPage {
		t.Errorf("second page should be final: %+v", page)
	}
}

func TestVerifyScore(t *testing.T) {
	srv := stubAdminServer(t)
	defer srv.Close()

	res, err := client.New(srv.URL).VerifyScore(context.Background(), "score-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Verified || res.Record == nil || res.Record.ObjectID != "0xrec" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestServerErrorSurfacesMessage(t *testing.T) {
	srv := stubAdminServer(t)
	defer srv.Close()

	_, err := client.New(srv.URL).GetTransaction(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error, got %v", err)
	}
}
