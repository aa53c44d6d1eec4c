package verify

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/hakwonlab/wonpay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_webhook_secret_12345"

func signedHeaders(t *testing.T, clk clock.Clock, payload []byte) Headers {
	t.Helper()
	ts := strconv.FormatInt(clk.Now().Unix(), 10)
	return Headers{
		ID:        "wh-1",
		Timestamp: ts,
		Signature: "v1," + Sign(testSecret, "wh-1", ts, payload),
	}
}

func TestVerifyValidSignature(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v := New(testSecret, clk)
	payload := []byte(`{"type":"Settlement.Settled","data":{"settlementId":"s1"}}`)

	require.NoError(t, v.Verify(payload, signedHeaders(t, clk, payload)))
}

func TestVerifyFlippedByte(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v := New(testSecret, clk)
	payload := []byte(`{"type":"Settlement.Settled","data":{"settlementId":"s1"}}`)
	hdr := signedHeaders(t, clk, payload)

	tampered := append([]byte(nil), payload...)
	tampered[10] ^= 0x01
	assert.ErrorIs(t, v.Verify(tampered, hdr), ErrSignatureMismatch)
}

func TestVerifyWrongSecret(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v := New("another_secret", clk)
	payload := []byte(`{"ok":true}`)

	assert.ErrorIs(t, v.Verify(payload, signedHeaders(t, clk, payload)), ErrSignatureMismatch)
}

func TestVerifyMissingHeaders(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v := New(testSecret, clk)

	for _, hdr := range []Headers{
		{},
		{ID: "wh-1", Timestamp: "1748779200"},
		{ID: "wh-1", Signature: "v1,abc"},
		{Timestamp: "1748779200", Signature: "v1,abc"},
	} {
		assert.ErrorIs(t, v.Verify([]byte("{}"), hdr), ErrMissingHeaders)
	}
}

func TestVerifyTimestampTolerance(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v := New(testSecret, clk)
	payload := []byte(`{"ok":true}`)

	// Signed now, replayed 301 seconds later.
	hdr := signedHeaders(t, clk, payload)
	clk.Advance(301 * time.Second)
	assert.ErrorIs(t, v.Verify(payload, hdr), ErrTimestampTolerance)

	// Exactly 300 seconds of skew is still inside the window.
	hdr2 := signedHeaders(t, clk, payload)
	clk.Advance(300 * time.Second)
	assert.NoError(t, v.Verify(payload, hdr2))

	// Timestamps from the future are bounded the same way.
	future := strconv.FormatInt(clk.Now().Add(301*time.Second).Unix(), 10)
	hdr3 := Headers{ID: "wh-1", Timestamp: future, Signature: "v1," + Sign(testSecret, "wh-1", future, payload)}
	assert.ErrorIs(t, v.Verify(payload, hdr3), ErrTimestampTolerance)
}

func TestVerifyMalformedTimestamp(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v := New(testSecret, clk)

	hdr := Headers{ID: "wh-1", Timestamp: "not-a-number", Signature: "v1,abc"}
	assert.ErrorIs(t, v.Verify([]byte("{}"), hdr), ErrInvalidTimestamp)
}

func TestVerifyMultipleSignatureVersions(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v := New(testSecret, clk)
	payload := []byte(`{"ok":true}`)
	ts := strconv.FormatInt(clk.Now().Unix(), 10)

	good := Sign(testSecret, "wh-1", ts, payload)
	hdr := Headers{
		ID:        "wh-1",
		Timestamp: ts,
		Signature: fmt.Sprintf("v2,%s v1,%s", Sign("other", "wh-1", ts, payload), good),
	}
	assert.NoError(t, v.Verify(payload, hdr))

	// Only non-v1 entries present.
	hdr.Signature = "v2," + good
	assert.ErrorIs(t, v.Verify(payload, hdr), ErrNoValidSignature)

	// A v1 entry that is not valid base64 is skipped, not accepted.
	hdr.Signature = "v1,%%%not-base64%%%"
	assert.ErrorIs(t, v.Verify(payload, hdr), ErrSignatureMismatch)
}

func TestVerifyExactRawBytes(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v := New(testSecret, clk)

	payload := []byte(`{"a":1,"b":2}`)
	hdr := signedHeaders(t, clk, payload)

	// Semantically equal JSON with different whitespace must fail.
	assert.Error(t, v.Verify([]byte(`{"a": 1, "b": 2}`), hdr))
}
