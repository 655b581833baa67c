package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alphabot-ai/vhibes/internal/auth"
)

func TestGenerateCredentials(t *testing.T) {
	creds, err := GenerateCredentials()
	if err != nil {
		t.Fatalf("generate credentials: %v", err)
	}
	if !strings.HasPrefix(creds.Address, "0x") || len(creds.Address) != 42 {
		t.Errorf("unexpected address %q", creds.Address)
	}
	if creds.PrivateKey == nil {
		t.Error("expected private key")
	}
}

func TestCredentialsSign(t *testing.T) {
	creds, err := GenerateCredentials()
	if err != nil {
		t.Fatalf("generate credentials: %v", err)
	}

	sig := creds.Sign("test message")
	got, err := auth.RecoverAddress("test message", sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got.String() != creds.Address {
		t.Errorf("signature recovers %s, want %s", got, creds.Address)
	}
}

func TestCredentialsFromHex(t *testing.T) {
	orig, err := GenerateCredentials()
	if err != nil {
		t.Fatalf("generate credentials: %v", err)
	}

	loaded, err := CredentialsFromHex("0x" + orig.PrivateKeyHex())
	if err != nil {
		t.Fatalf("load credentials: %v", err)
	}
	if loaded.Address != orig.Address {
		t.Errorf("expected %s, got %s", orig.Address, loaded.Address)
	}

	if _, err := CredentialsFromHex("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":    "requirement not met",
			"code":     "REQUIREMENT_NOT_MET",
			"metadata": map[string]string{"required": "7", "actual": "2"},
		})
	}))
	defer ts.Close()

	c := New(ts.URL)
	c.Token = "t"
	_, err := c.ClaimBadge("login_streak")
	if err == nil {
		t.Fatal("expected error")
	}
	if CodeOf(err) != "REQUIREMENT_NOT_MET" {
		t.Errorf("unexpected code %q", CodeOf(err))
	}
	apiErr := err.(*APIError)
	if apiErr.Status != http.StatusConflict || apiErr.Metadata["required"] != "7" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestTopParticipantsZipsArrays(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected limit %q", r.URL.Query().Get("limit"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accounts": []string{"0xa", "0xb"},
			"counts":   []uint64{5, 3},
		})
	}))
	defer ts.Close()

	top, err := New(ts.URL).TopParticipants(2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].Address != "0xa" || top[0].Count != 5 || top[1].Count != 3 {
		t.Errorf("unexpected participants %+v", top)
	}
}

func TestAdminSecretWinsOverToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Secret") != "s3cret" || r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer ts.Close()

	c := NewTestHelper(ts.URL).Admin("s3cret")
	c.Token = "ignored"
	if err := c.Authorize("roast", true); err != nil {
		t.Fatalf("authorize: %v", err)
	}
}
