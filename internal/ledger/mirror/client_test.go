package mirror

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrocert/certification-backend/internal/ledger"
)

const testReference = "https://hashscan.io/testnet/transaction/0.0.1001@1700000000.000000001#0.0.1002:1"

func newMirror(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tokens/0.0.2001/nfts/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"account_id":"0.0.1001","created_timestamp":"1700000005.000000042","deleted":false,"metadata":%q,"serial_number":1,"token_id":"0.0.2001"}`,
			base64.StdEncoding.EncodeToString([]byte(testReference)))
	})
	mux.HandleFunc("/api/v1/tokens/0.0.2002/nfts/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"metadata":"%%%not-base64","created_timestamp":"1700000005.0","serial_number":1,"token_id":"0.0.2002"}`)
	})
	mux.HandleFunc("/api/v1/tokens/0.0.2003/nfts/1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"_status":{"messages":[{"message":"Internal error"}]}}`, http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v1/topics/0.0.1002/messages/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"consensus_timestamp":"1700000000.000000001","message":%q,"payer_account_id":"0.0.1001","sequence_number":1,"topic_id":"0.0.1002"}`,
			base64.StdEncoding.EncodeToString([]byte(`{"productName":"Beans"}`)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryUnit(t *testing.T) {
	srv := newMirror(t)
	client := NewClient(srv.URL+"/", srv.Client(), nil)

	rec, err := client.Query(context.Background(), ledger.UnitKey("0.0.2001", 1))
	require.NoError(t, err)
	assert.Equal(t, testReference, string(rec.Data))
	assert.Equal(t, "0.0.1001", rec.Owner)
	assert.Equal(t, time.Unix(1700000005, 42).UTC(), rec.ConsensusTimestamp)
	assert.False(t, rec.Deleted)
}

func TestQueryMessage(t *testing.T) {
	srv := newMirror(t)
	client := NewClient(srv.URL, srv.Client(), nil)

	rec, err := client.Query(context.Background(), ledger.MessageKey("0.0.1002", 1))
	require.NoError(t, err)
	assert.Equal(t, `{"productName":"Beans"}`, string(rec.Data))
	assert.Equal(t, ledger.MessageKey("0.0.1002", 1), rec.Key)
}

func TestQueryErrors(t *testing.T) {
	srv := newMirror(t)
	client := NewClient(srv.URL, srv.Client(), nil)
	ctx := context.Background()

	_, err := client.Query(ctx, ledger.UnitKey("0.0.9999", 1))
	assert.ErrorIs(t, err, ledger.ErrNotFound, "404 from the mirror")

	_, err = client.Query(ctx, ledger.UnitKey("not-an-id", 1))
	assert.ErrorIs(t, err, ledger.ErrNotFound, "malformed asset id")

	_, err = client.Query(ctx, ledger.UnitKey("0.0.2001", 0))
	assert.ErrorIs(t, err, ledger.ErrNotFound, "serial below 1")

	_, err = client.Query(ctx, ledger.UnitKey("0.0.2002", 1))
	assert.ErrorIs(t, err, ledger.ErrUnavailable, "undecodable metadata")

	_, err = client.Query(ctx, ledger.UnitKey("0.0.2003", 1))
	assert.ErrorIs(t, err, ledger.ErrUnavailable, "server error")
}

func TestQueryUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, nil, nil)
	_, err := client.Query(context.Background(), ledger.UnitKey("0.0.2001", 1))
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1700000000.5")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 500000000).UTC(), ts)

	ts, err = ParseTimestamp("1700000000")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ts)

	_, err = ParseTimestamp("soon")
	assert.Error(t, err)
	_, err = ParseTimestamp("1.1234567890")
	assert.Error(t, err)
}
