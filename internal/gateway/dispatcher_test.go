package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"paygate/internal/store"
)

const testHash = "0x2222222222222222222222222222222222222222222222222222222222222222"

type stubVerifier struct {
	ok     bool
	reason string
	calls  int
}

func (s *stubVerifier) Verify(context.Context, string, string, string) (bool, string) {
	s.calls++
	return s.ok, s.reason
}

func registerService(t *testing.T, st store.Store, endpointURL string) store.Service {
	t.Helper()
	svc, err := st.CreateService(context.Background(), "weather", "0xabc0000000000000000000000000000000000001", endpointURL, "1.5")
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return svc
}

func onlyAttempt(t *testing.T, st store.Store) store.Attempt {
	t.Helper()
	attempts, err := st.RecentAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(attempts))
	}
	return attempts[0]
}

func TestHandleForwardsOnValidPayment(t *testing.T) {
	var gotBody []byte
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer target.Close()

	st := store.NewMemory()
	svc := registerService(t, st, target.URL)
	d := NewDispatcher(st, &stubVerifier{ok: true}, time.Second, zap.NewNop())

	payload := json.RawMessage(`{"a":1}`)
	res, err := d.Handle(context.Background(), svc.ID, testHash, payload)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Status != store.StatusSuccess {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if !bytes.Equal(res.UpstreamBody, []byte(`{"ok":true}`)) {
		t.Fatalf("upstream body not passed through: %s", res.UpstreamBody)
	}
	if !bytes.Equal(gotBody, payload) {
		t.Fatalf("payload not forwarded verbatim: %s", gotBody)
	}

	att := onlyAttempt(t, st)
	if att.ServiceID != svc.ID || att.TxHash != testHash || att.Status != store.StatusSuccess {
		t.Fatalf("unexpected ledger row: %#v", att)
	}
}

func TestHandleRejectedPaymentNeverForwards(t *testing.T) {
	forwarded := false
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = true
	}))
	defer target.Close()

	st := store.NewMemory()
	svc := registerService(t, st, target.URL)
	d := NewDispatcher(st, &stubVerifier{ok: false, reason: "amount_mismatch"}, time.Second, zap.NewNop())

	res, err := d.Handle(context.Background(), svc.ID, testHash, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.Rejected {
		t.Fatalf("expected rejection")
	}
	if forwarded {
		t.Fatalf("rejected payment must not be forwarded")
	}

	att := onlyAttempt(t, st)
	if att.Status != store.StatusFailed {
		t.Fatalf("expected failed row, got %s", att.Status)
	}
}

func TestHandleUnreachableEndpoint(t *testing.T) {
	st := store.NewMemory()
	// Nothing listens here.
	svc := registerService(t, st, "http://127.0.0.1:1")
	d := NewDispatcher(st, &stubVerifier{ok: true}, time.Second, zap.NewNop())

	res, err := d.Handle(context.Background(), svc.ID, testHash, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Status != store.StatusFailedProxy {
		t.Fatalf("expected failed_proxy, got %s", res.Status)
	}
	if res.UpstreamStatus != 0 {
		t.Fatalf("expected no upstream status, got %d", res.UpstreamStatus)
	}

	att := onlyAttempt(t, st)
	if att.Status != store.StatusFailedProxy {
		t.Fatalf("expected failed_proxy row, got %s", att.Status)
	}
}

func TestHandleUpstreamErrorPassthrough(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer target.Close()

	st := store.NewMemory()
	svc := registerService(t, st, target.URL)
	d := NewDispatcher(st, &stubVerifier{ok: true}, time.Second, zap.NewNop())

	res, err := d.Handle(context.Background(), svc.ID, testHash, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Status != store.StatusFailedProxy {
		t.Fatalf("expected failed_proxy, got %s", res.Status)
	}
	if res.UpstreamStatus != http.StatusTeapot {
		t.Fatalf("expected upstream status passthrough, got %d", res.UpstreamStatus)
	}
	if !bytes.Equal(res.UpstreamBody, []byte(`{"error":"boom"}`)) {
		t.Fatalf("expected upstream body passthrough, got %s", res.UpstreamBody)
	}

	att := onlyAttempt(t, st)
	if att.Status != store.StatusFailedProxy {
		t.Fatalf("expected failed_proxy row, got %s", att.Status)
	}
}

func TestHandleUnknownServiceWritesNothing(t *testing.T) {
	st := store.NewMemory()
	d := NewDispatcher(st, &stubVerifier{ok: true}, time.Second, zap.NewNop())

	_, err := d.Handle(context.Background(), 99, testHash, json.RawMessage(`{}`))
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}

	attempts, err := st.RecentAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("expected no ledger rows, got %d", len(attempts))
	}
}

func TestHandleDuplicateSuccessSkipsVerifyAndForward(t *testing.T) {
	forwarded := false
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = true
	}))
	defer target.Close()

	st := store.NewMemory()
	svc := registerService(t, st, target.URL)
	if _, err := st.AppendAttempt(context.Background(), svc.ID, testHash, store.StatusSuccess); err != nil {
		t.Fatalf("seed success row: %v", err)
	}

	ver := &stubVerifier{ok: true}
	d := NewDispatcher(st, ver, time.Second, zap.NewNop())

	res, err := d.Handle(context.Background(), svc.ID, testHash, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.Rejected {
		t.Fatalf("expected duplicate to be rejected")
	}
	if ver.calls != 0 {
		t.Fatalf("duplicate must not be re-verified, verifier called %d times", ver.calls)
	}
	if forwarded {
		t.Fatalf("duplicate must not be re-forwarded")
	}

	attempts, err := st.RecentAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(attempts) != 2 || attempts[0].Status != store.StatusFailed {
		t.Fatalf("expected a new failed row on top, got %#v", attempts)
	}
}
