// ABOUTME: Tests for the carrier adapter and E.164 normalization
// ABOUTME: Verifies bearer token minting, payload shape and pre-flight recipient rejection

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func carrierCfg(endpoint string) CarrierConfig {
	return CarrierConfig{
		Endpoint:   endpoint,
		AccountID:  "AC0000",
		APIKey:     "SK1234",
		APISecret:  "topsecret",
		FromNumber: "+15559990000",
	}
}

func TestCarrier_Send_Accepted(t *testing.T) {
	var captured struct {
		auth string
		body carrierSendRequest
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123abc"}`))
	}))
	defer srv.Close()

	c := NewCarrier("carrier:main", carrierCfg(srv.URL), nil)
	c.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	result := c.Send(context.Background(), "555-000-1111", "hi there")

	assert.Equal(t, StatusAccepted, result.Status)
	assert.Equal(t, "SM123abc", result.ProviderMessageID)

	// recipient was normalized before the call
	assert.Equal(t, "+15550001111", captured.body.To)
	assert.Equal(t, "+15559990000", captured.body.From)
	assert.Equal(t, "hi there", captured.body.Body)

	// token is a valid HS256 JWT carrying the account identity
	require.True(t, strings.HasPrefix(captured.auth, "Bearer "))
	raw := strings.TrimPrefix(captured.auth, "Bearer ")
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		return []byte("topsecret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "SK1234", claims["iss"])
	assert.Equal(t, "AC0000", claims["sub"])
}

func TestCarrier_Send_IDFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"msg-77"}`))
	}))
	defer srv.Close()

	c := NewCarrier("carrier:main", carrierCfg(srv.URL), nil)
	result := c.Send(context.Background(), "+15550001111", "hi")

	assert.Equal(t, StatusAccepted, result.Status)
	assert.Equal(t, "msg-77", result.ProviderMessageID)
}

func TestCarrier_Send_InvalidRecipientSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewCarrier("carrier:main", carrierCfg(srv.URL), nil)
	result := c.Send(context.Background(), "12345", "hi")

	assert.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, "invalid_recipient", result.ReasonCode)
	assert.False(t, called, "no network call for an unnormalizable recipient")
}

func TestCarrier_Send_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"blocked number"}`))
	}))
	defer srv.Close()

	c := NewCarrier("carrier:main", carrierCfg(srv.URL), nil)
	result := c.Send(context.Background(), "+15550001111", "hi")

	assert.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, "status_400", result.ReasonCode)
}

func TestCarrier_Send_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewCarrier("carrier:main", carrierCfg(srv.URL), nil)
	result := c.Send(context.Background(), "+15550001111", "hi")

	assert.Equal(t, StatusTransportFailure, result.Status)
}

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "already e164", in: "+15550001111", want: "+15550001111"},
		{name: "plus with separators", in: "+1 (555) 000-1111", want: "+15550001111"},
		{name: "ten bare digits", in: "5550001111", want: "+15550001111"},
		{name: "ten digits with separators", in: "555-000-1111", want: "+15550001111"},
		{name: "eleven digits leading one", in: "15550001111", want: "+15550001111"},
		{name: "international without plus", in: "447911123456", want: "+447911123456"},
		{name: "whitespace trimmed", in: "  5550001111  ", want: "+15550001111"},
		{name: "empty", in: "", wantErr: true},
		{name: "only separators", in: "---", wantErr: true},
		{name: "too short", in: "12345", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeE164(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
