package connect

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aegis-sign/connect/pkg/apierrors"
	"github.com/aegis-sign/connect/pkg/credentials"
	"github.com/aegis-sign/connect/pkg/dispatch"
	"github.com/aegis-sign/connect/pkg/requesturi"
	"github.com/aegis-sign/connect/pkg/topic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type stubFactory struct {
	mu     sync.Mutex
	topics []*topic.Static
	kinds  []topic.Kind
	err    error
}

func (f *stubFactory) Create(_ context.Context, kind topic.Kind) (topic.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	tp := topic.NewStatic(fmt.Sprintf("https://relay.test/topic/%d", len(f.topics)+1))
	f.topics = append(f.topics, tp)
	f.kinds = append(f.kinds, kind)
	return tp, nil
}

func (f *stubFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics)
}

func (f *stubFactory) last() *topic.Static {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topics[len(f.topics)-1]
}

type stubHandler struct {
	mu     sync.Mutex
	uris   []string
	err    error
	onOpen func(uri string)
}

func (h *stubHandler) Open(uri string) error {
	h.mu.Lock()
	h.uris = append(h.uris, uri)
	h.mu.Unlock()
	if h.onOpen != nil {
		h.onOpen(uri)
	}
	return h.err
}

func (h *stubHandler) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.uris...)
}

type stubCloser struct {
	count atomic.Int64
	err   error
}

func (c *stubCloser) Close() error {
	c.count.Add(1)
	return c.err
}

type stubCredentials struct {
	profiles map[string]*credentials.Profile
	err      error
	canSign  bool
}

func (s *stubCredentials) Receive(_ context.Context, token string, requested []string) (*credentials.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	profile, ok := s.profiles[token]
	if !ok {
		return nil, errors.New("bad signature")
	}
	return profile, nil
}

func (s *stubCredentials) CanSign() bool { return s.canSign }

type fixture struct {
	factory  *stubFactory
	display  *stubHandler
	redirect *stubHandler
	closer   *stubCloser
	creds    *stubCredentials
}

func newFixture() *fixture {
	return &fixture{
		factory:  &stubFactory{},
		display:  &stubHandler{},
		redirect: &stubHandler{},
		closer:   &stubCloser{},
		creds: &stubCredentials{profiles: map[string]*credentials.Profile{
			"good-token": {Address: "0xuser", Name: "Alice"},
		}},
	}
}

func (f *fixture) connect(t *testing.T, mobile bool, extra ...Option) *Connect {
	t.Helper()
	opts := []Option{
		WithClientID("cid"),
		WithMobile(mobile),
		WithTopicFactory(f.factory.Create),
		WithDisplay(f.display),
		WithCloser(f.closer),
		WithMobileRedirect(f.redirect),
		WithCredentials(f.creds),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	c, err := New("My App", append(opts, extra...)...)
	require.NoError(t, err)
	return c
}

// resolveOnOpen 在 handler 被调用时结算最新的 topic。
func (f *fixture) resolveOnOpen(h *stubHandler, value string, err error) {
	h.onOpen = func(string) {
		tp := f.factory.last()
		if err != nil {
			tp.Reject(err)
			return
		}
		tp.Resolve(value)
	}
}

func TestRequestAddressDisplayFlow(t *testing.T) {
	f := newFixture()
	f.resolveOnOpen(f.display, "good-token", nil)
	c := f.connect(t, false)

	address, err := c.RequestAddress(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "0xuser", address)

	require.Equal(t, []string{
		"me.uport:me?label=My%20App&callback_url=https%3A%2F%2Frelay.test%2Ftopic%2F1&client_id=cid",
	}, f.display.calls())
	require.Empty(t, f.redirect.calls())
	require.Equal(t, int64(1), f.closer.count.Load())
	require.Equal(t, []topic.Kind{topic.KindAccessToken}, f.factory.kinds)
}

func TestSendTransactionMobileFlow(t *testing.T) {
	f := newFixture()
	f.resolveOnOpen(f.redirect, "0xtxhash", nil)
	c := f.connect(t, true)

	hash, err := c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc", Value: "0xa"}, nil)
	require.NoError(t, err)
	require.Equal(t, "0xtxhash", hash)

	calls := f.redirect.calls()
	require.Len(t, calls, 1)
	require.True(t, strings.HasPrefix(calls[0], "me.uport:0xabc?value=10&label=My%20App"))
	require.Empty(t, f.display.calls())
	require.Zero(t, f.closer.count.Load())
	require.Equal(t, []topic.Kind{topic.KindTx}, f.factory.kinds)
}

func TestTopicRejectionClosesDisplayOnce(t *testing.T) {
	f := newFixture()
	f.resolveOnOpen(f.display, "", topic.ErrTimeout)
	c := f.connect(t, false)

	_, err := c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc"}, nil)
	require.ErrorIs(t, err, topic.ErrTimeout)
	require.True(t, apierrors.HasCode(err, apierrors.CodeCorrelationFailed))
	require.Equal(t, int64(1), f.closer.count.Load())
}

func TestFunctionTakesPrecedenceOverData(t *testing.T) {
	f := newFixture()
	f.resolveOnOpen(f.display, "0xtx", nil)
	c := f.connect(t, false)

	_, err := c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc", Function: "set(uint 1)", Data: "0x1234"}, nil)
	require.NoError(t, err)
	uri := f.display.calls()[0]
	require.Contains(t, uri, "function=set(uint%201)")
	require.NotContains(t, uri, "bytecode")
}

func TestMissingTargetFailsBeforeSideEffects(t *testing.T) {
	for _, mobile := range []bool{true, false} {
		f := newFixture()
		c := f.connect(t, mobile)

		_, err := c.SendTransaction(context.Background(), requesturi.Intent{Value: "0x1", Data: "0x60606040"}, nil)
		require.True(t, apierrors.HasCode(err, apierrors.CodeInvalidIntent))
		require.Zero(t, f.factory.count())
		require.Empty(t, f.display.calls())
		require.Empty(t, f.redirect.calls())
		require.Zero(t, f.closer.count.Load())
	}
}

func TestNoCloserMeansNoCleanup(t *testing.T) {
	f := newFixture()
	f.resolveOnOpen(f.display, "0xtx", nil)
	c, err := New("app",
		WithMobile(false),
		WithTopicFactory(f.factory.Create),
		WithDisplay(f.display),
		WithCredentials(f.creds),
	)
	require.NoError(t, err)

	_, err = c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc"}, nil)
	require.NoError(t, err)
	require.Zero(t, f.closer.count.Load())
}

func TestOverrideHandlerReplacesDisplay(t *testing.T) {
	f := newFixture()
	override := &stubHandler{}
	f.resolveOnOpen(override, "0xtx", nil)
	c := f.connect(t, false)

	_, err := c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc"}, override)
	require.NoError(t, err)
	require.Len(t, override.calls(), 1)
	require.Empty(t, f.display.calls())
	require.Equal(t, int64(1), f.closer.count.Load())
}

func TestCloseErrorDoesNotMaskResult(t *testing.T) {
	f := newFixture()
	f.closer.err = errors.New("qr already hidden")
	f.resolveOnOpen(f.display, "0xtx", nil)
	reg := prometheus.NewRegistry()
	c := f.connect(t, false, WithRegisterer(reg))

	hash, err := c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc"}, nil)
	require.NoError(t, err)
	require.Equal(t, "0xtx", hash)
	require.Equal(t, int64(1), f.closer.count.Load())

	f.resolveOnOpen(f.display, "", topic.ErrCancelled)
	_, err = c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc"}, nil)
	require.ErrorIs(t, err, topic.ErrCancelled)
	require.Equal(t, int64(2), f.closer.count.Load())
}

func TestDispatchFailureCleansUp(t *testing.T) {
	f := newFixture()
	f.display.err = errors.New("renderer crashed")
	c := f.connect(t, false)

	_, err := c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc"}, nil)
	require.True(t, apierrors.HasCode(err, apierrors.CodeDispatchFailed))
	require.Equal(t, int64(1), f.closer.count.Load())
}

func TestMissingMobileRedirectIsDispatchError(t *testing.T) {
	f := newFixture()
	c, err := New("app",
		WithMobile(true),
		WithTopicFactory(f.factory.Create),
		WithCloser(f.closer),
		WithCredentials(f.creds),
	)
	require.NoError(t, err)

	_, err = c.RequestAddress(context.Background(), nil)
	require.True(t, apierrors.HasCode(err, apierrors.CodeDispatchFailed))
	require.ErrorIs(t, err, dispatch.ErrNoHandler)
	require.Zero(t, f.closer.count.Load())
}

func TestTopicCreationFailure(t *testing.T) {
	f := newFixture()
	f.factory.err = errors.New("relay down")
	c := f.connect(t, false)

	_, err := c.RequestAddress(context.Background(), nil)
	require.True(t, apierrors.HasCode(err, apierrors.CodeCorrelationFailed))
	require.Empty(t, f.display.calls())
	require.Zero(t, f.closer.count.Load())
}

func TestVerificationFailureIsDistinct(t *testing.T) {
	f := newFixture()
	f.resolveOnOpen(f.display, "forged-token", nil)
	reg := prometheus.NewRegistry()
	c := f.connect(t, false, WithRegisterer(reg))

	_, err := c.RequestCredentials(context.Background(), CredentialRequest{}, nil)
	require.True(t, apierrors.HasCode(err, apierrors.CodeVerificationFailed))
	require.False(t, apierrors.HasCode(err, apierrors.CodeCorrelationFailed))
	require.Equal(t, int64(1), f.closer.count.Load())
	require.Equal(t, float64(1), testutil.ToFloat64(c.metrics.verifyTotal.WithLabelValues("rejected")))
}

func TestRequestsAreIndependent(t *testing.T) {
	f := newFixture()
	c := f.connect(t, false)

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.SendTransaction(context.Background(), requesturi.Intent{To: fmt.Sprintf("0x%d", i)}, nil)
		}(i)
	}
	require.Eventually(t, func() bool { return f.factory.count() == n }, testTimeout, testTick)
	f.factory.mu.Lock()
	topics := append([]*topic.Static(nil), f.factory.topics...)
	f.factory.mu.Unlock()
	for i, tp := range topics {
		tp.Resolve(fmt.Sprintf("hash-%d", i))
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.True(t, strings.HasPrefix(results[i], "hash-"))
	}
	require.Equal(t, int64(n), f.closer.count.Load())
}

func TestDefaults(t *testing.T) {
	c, err := New("", WithTopicFactory((&stubFactory{}).Create), WithUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"))
	require.NoError(t, err)
	require.Equal(t, DefaultAppName, c.AppName())
	require.Equal(t, "https://ropsten.infura.io/uport-connect-app", c.RPCURL())
	require.True(t, c.IsMobile())
	require.False(t, c.CanSign())

	c, err = New("My App!", WithMobile(false), WithBuiltinDisplay(io.Discard))
	require.NoError(t, err)
	require.Equal(t, "https://ropsten.infura.io/My-App-", c.RPCURL())
	require.False(t, c.IsMobile())
	require.NotNil(t, c.closer, "built-in display brings its own closer")

	c, err = New("app", WithInfuraAPIKey("key"), WithCredentials(&stubCredentials{canSign: true}))
	require.NoError(t, err)
	require.Equal(t, "https://ropsten.infura.io/key", c.RPCURL())
	require.True(t, c.CanSign())

	c, err = New("app", WithDisplay(&stubHandler{}), WithRPCURL("http://localhost:8545"))
	require.NoError(t, err)
	require.Nil(t, c.closer, "custom display has no implicit closer")
	require.Equal(t, "http://localhost:8545", c.RPCURL())

	_, err = New("app", WithRelayURL("not a url"))
	require.Error(t, err)
}

func TestMetricsRecordOutcomes(t *testing.T) {
	f := newFixture()
	f.resolveOnOpen(f.display, "0xtx", nil)
	reg := prometheus.NewRegistry()
	c := f.connect(t, false, WithRegisterer(reg))

	_, err := c.SendTransaction(context.Background(), requesturi.Intent{To: "0xabc"}, nil)
	require.NoError(t, err)
	_, err = c.SendTransaction(context.Background(), requesturi.Intent{}, nil)
	require.Error(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(c.metrics.requestTotal.WithLabelValues("tx", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.metrics.requestTotal.WithLabelValues("tx", "invalid_intent")))
	require.Equal(t, float64(0), testutil.ToFloat64(c.metrics.inFlight.WithLabelValues("tx")))
}

func TestWeb3ProviderIsBound(t *testing.T) {
	f := newFixture()
	f.resolveOnOpen(f.display, "good-token", nil)
	c := f.connect(t, false)

	p := c.Web3Provider()
	require.Equal(t, c.RPCURL(), p.RPCURL())
	address, err := p.RequestAddress(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "0xuser", address)
}

func TestRequestCredentialsWithSignedAssertion(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer := credentials.New(credentials.Settings{Signer: key, Issuer: "did:ethr:0xsigner"})
	token, err := signer.Issue(map[string]any{"address": "0xsigned", "name": "Bob"}, time.Minute)
	require.NoError(t, err)

	f := newFixture()
	f.resolveOnOpen(f.display, token, nil)
	verifier := credentials.New(credentials.Settings{Resolver: credentials.StaticKeys{"did:ethr:0xsigner": &key.PublicKey}})
	c := f.connect(t, false, WithCredentials(verifier))

	profile, err := c.RequestCredentials(context.Background(), CredentialRequest{Requested: []string{"name"}}, nil)
	require.NoError(t, err)
	require.Equal(t, "0xsigned", profile.Address)
	require.Equal(t, "Bob", profile.Name)
	require.Equal(t, int64(1), f.closer.count.Load())
}
