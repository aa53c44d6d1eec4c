package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hakwonlab/wonpay/internal/clock"
)

// ErrVerification is the root of every verification failure so callers
// can map the whole class to a single 401 response.
var ErrVerification = errors.New("webhook verification failed")

var (
	ErrMissingHeaders     = fmt.Errorf("%w: missing required headers", ErrVerification)
	ErrInvalidTimestamp   = fmt.Errorf("%w: invalid timestamp", ErrVerification)
	ErrTimestampTolerance = fmt.Errorf("%w: timestamp outside tolerance", ErrVerification)
	ErrNoValidSignature   = fmt.Errorf("%w: no v1 signature present", ErrVerification)
	ErrSignatureMismatch  = fmt.Errorf("%w: signature mismatch", ErrVerification)
)

// Tolerance bounds the replay window on either side of now.
const Tolerance = 5 * time.Minute

// Headers carries the Standard Webhooks headers of a delivery.
type Headers struct {
	ID        string
	Signature string
	Timestamp string
}

// Verifier checks Standard Webhooks HMAC signatures.
type Verifier struct {
	secret    []byte
	clock     clock.Clock
	tolerance time.Duration
}

func New(secret string, clk clock.Clock) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		clock:     clk,
		tolerance: Tolerance,
	}
}

// Verify authenticates payload against the delivery headers. The payload
// must be the exact raw request bytes; any reserialization breaks the
// signature.
func (v *Verifier) Verify(payload []byte, hdr Headers) error {
	if hdr.ID == "" || hdr.Signature == "" || hdr.Timestamp == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(hdr.Timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	now := v.clock.Now().Unix()
	diff := now - ts
	if diff < 0 {
		diff = -diff
	}
	if diff > int64(v.tolerance/time.Second) {
		return ErrTimestampTolerance
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s.", hdr.Timestamp, hdr.ID)
	mac.Write(payload)
	expected := mac.Sum(nil)

	// The signature header holds space-separated "version,value" pairs.
	// Only v1 is recognized; other versions are skipped.
	sawV1 := false
	for _, part := range strings.Fields(hdr.Signature) {
		version, value, ok := strings.Cut(part, ",")
		if !ok || version != "v1" {
			continue
		}
		sawV1 = true

		candidate, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			continue
		}
		if len(candidate) == len(expected) && hmac.Equal(candidate, expected) {
			return nil
		}
	}

	if !sawV1 {
		return ErrNoValidSignature
	}
	return ErrSignatureMismatch
}

// Sign produces the v1 signature value for the given delivery. Used by
// tests and by outbound webhook tooling.
func Sign(secret, webhookID, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s.", timestamp, webhookID)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
