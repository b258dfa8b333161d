package oauth

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTokenResponse_Credentials(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := &TokenResponse{
		AccessToken:  "access",
		ExpiresIn:    3600,
		RefreshToken: "refresh",
		IDToken:      "id",
	}

	creds := tr.Credentials(now)
	if creds.TokenType != TokenTypeBearer {
		t.Errorf("Expected default Bearer, got %q", creds.TokenType)
	}
	if !creds.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("Expected expiry now+1h, got %v", creds.ExpiresAt)
	}
	if creds.IDToken != "id" || creds.RefreshToken != "refresh" {
		t.Errorf("Unexpected credentials %+v", creds)
	}
}

func TestTokenResponse_Scopes(t *testing.T) {
	tr := &TokenResponse{Scope: "openid profile,email"}
	got := tr.Scopes()
	if len(got) != 3 || got[2] != "email" {
		t.Errorf("Unexpected scopes %v", got)
	}
}

func TestParseTokenResponse(t *testing.T) {
	if _, err := parseTokenResponse([]byte(`{"token_type":"Bearer"}`)); !errors.Is(err, ErrDecodingFailed) {
		t.Errorf("Expected ErrDecodingFailed for missing access_token, got %v", err)
	}
	if _, err := parseTokenResponse([]byte(`[`)); !errors.Is(err, ErrDecodingFailed) {
		t.Errorf("Expected ErrDecodingFailed for bad json, got %v", err)
	}
	tr, err := parseTokenResponse([]byte(`{"access_token":"a","expires_in":10,"scope":"openid"}`))
	if err != nil || tr.AccessToken != "a" || tr.ExpiresIn != 10 {
		t.Errorf("Unexpected parse result %+v, %v", tr, err)
	}
}

func TestCredentials_ExpiresWithin(t *testing.T) {
	now := time.Now()
	creds := &Credentials{AccessToken: "a", ExpiresAt: now.Add(60 * time.Second)}

	tests := []struct {
		window time.Duration
		want   bool
	}{
		{0, false},
		{59 * time.Second, false},
		{60 * time.Second, true},
		{5 * time.Minute, true},
	}
	for _, tt := range tests {
		if got := creds.ExpiresWithin(now, tt.window); got != tt.want {
			t.Errorf("ExpiresWithin(%v) = %v, want %v", tt.window, got, tt.want)
		}
	}

	if creds.IsExpired() {
		t.Error("Expected unexpired credentials")
	}
	expired := &Credentials{ExpiresAt: now.Add(-time.Second)}
	if !expired.IsExpired() {
		t.Error("Expected expired credentials")
	}
}

func TestCredentials_JSON(t *testing.T) {
	creds := &Credentials{
		AccessToken: "a",
		TokenType:   "Bearer",
		ExpiresAt:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(creds)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	json.Unmarshal(b, &m)
	if _, ok := m["refresh_token"]; ok {
		t.Error("Empty refresh token should be omitted")
	}
	if m["expires_at"] != "2026-05-01T00:00:00Z" {
		t.Errorf("Unexpected expires_at %v", m["expires_at"])
	}
}

func TestCredentials_Token(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	tok := (&Credentials{AccessToken: "a", TokenType: "Bearer", RefreshToken: "r", IDToken: "id", ExpiresAt: exp}).Token()

	if tok.AccessToken != "a" || tok.RefreshToken != "r" || !tok.Expiry.Equal(exp) {
		t.Errorf("Unexpected oauth2 token %+v", tok)
	}
	if tok.Extra("id_token") != "id" {
		t.Errorf("Expected id_token extra, got %v", tok.Extra("id_token"))
	}
	if !tok.Valid() {
		t.Error("Expected valid oauth2 token")
	}
}
