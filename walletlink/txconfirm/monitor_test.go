package txconfirm

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
	"github.com/pushchain/push-wallet-link/walletlink/db"
	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/metrics"
	"github.com/pushchain/push-wallet-link/walletlink/txstore"
)

const pollInterval = 2 * time.Second

type mockRPCClient struct {
	mock.Mock
}

func (m *mockRPCClient) SendRawTransaction(ctx context.Context, raw []byte, opts common.SendOptions) (solana.Signature, error) {
	args := m.Called(ctx, raw, opts)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *mockRPCClient) GetLatestBlockReference(ctx context.Context, commitment rpc.CommitmentType) (common.BlockHeightBound, error) {
	args := m.Called(ctx, commitment)
	return args.Get(0).(common.BlockHeightBound), args.Error(1)
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, signatures []solana.Signature) ([]*common.SignatureStatus, error) {
	args := m.Called(ctx, signatures)
	statuses, _ := args.Get(0).([]*common.SignatureStatus)
	return statuses, args.Error(1)
}

func (m *mockRPCClient) GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	args := m.Called(ctx, commitment)
	return args.Get(0).(uint64), args.Error(1)
}

type harness struct {
	clock  *clock.Mock
	client *mockRPCClient
	polled chan struct{}
	target Target
	logger zerolog.Logger
}

func newHarness() *harness {
	sig := solana.Signature{7, 7, 7}
	return &harness{
		clock:  clock.NewMock(),
		client: new(mockRPCClient),
		polled: make(chan struct{}, 16),
		logger: zerolog.Nop(),
		target: Target{
			Signature: sig,
			Raw:       []byte{1, 2, 3, 4, 5},
			Bound:     common.BlockHeightBound{Blockhash: "hash", LastValidBlockHeight: 100},
		},
	}
}

func (h *harness) onStatus(statuses []*common.SignatureStatus, err error) *mock.Call {
	return h.client.On("GetSignatureStatuses", mock.Anything, []solana.Signature{h.target.Signature}).
		Run(func(mock.Arguments) { h.polled <- struct{}{} }).
		Return(statuses, err)
}

func (h *harness) monitor(cfg Config) *Monitor {
	cfg.Client = h.client
	cfg.Clock = h.clock
	if cfg.PollInterval == 0 {
		cfg.PollInterval = pollInterval
	}
	if cfg.ResubmitInterval == 0 {
		cfg.ResubmitInterval = pollInterval
	}
	cfg.Logger = h.logger
	return NewMonitor(cfg)
}

// tick advances one poll interval and waits until the status query ran.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.clock.Add(pollInterval)
	select {
	case <-h.polled:
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not run")
	}
}

func wait(t *testing.T, w *Watch) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case <-w.Done():
	case <-ctx.Done():
		t.Fatal("watch did not resolve")
	}
	return w.Wait(ctx)
}

func confirmed(slot uint64) []*common.SignatureStatus {
	return []*common.SignatureStatus{{Slot: slot, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}}
}

func TestMonitor_ConfirmedOnThirdPoll(t *testing.T) {
	h := newHarness()
	h.onStatus([]*common.SignatureStatus{nil}, nil).Twice()
	h.onStatus(confirmed(42), nil).Once()
	h.client.On("GetBlockHeight", mock.Anything, mock.Anything).Return(uint64(90), nil)

	var broadcasts [][]byte
	h.client.On("SendRawTransaction", mock.Anything, mock.Anything, common.SendOptions{SkipPreflight: true}).
		Run(func(args mock.Arguments) { broadcasts = append(broadcasts, args.Get(1).([]byte)) }).
		Return(h.target.Signature, nil)

	m := metrics.New(prometheus.NewRegistry())
	w := h.monitor(Config{Metrics: m}).Watch(context.Background(), h.target)
	for i := 0; i < 3; i++ {
		h.tick(t)
	}

	res, err := wait(t, w)
	require.NoError(t, err)
	assert.Equal(t, h.target.Signature, res.Signature)
	assert.Equal(t, common.StatusConfirmed, res.Status)
	assert.Equal(t, uint64(42), res.Slot)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 2, res.Resubmissions)

	require.Len(t, broadcasts, 2)
	for _, b := range broadcasts {
		assert.Equal(t, h.target.Raw, b)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResubmissionsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PendingConfirmations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmationOutcomes.WithLabelValues(string(common.StatusConfirmed))))
}

func TestMonitor_ResubmissionIsThrottled(t *testing.T) {
	h := newHarness()
	h.onStatus([]*common.SignatureStatus{nil}, nil).Times(4)
	h.onStatus(confirmed(1), nil).Once()
	h.client.On("GetBlockHeight", mock.Anything, mock.Anything).Return(uint64(1), nil)
	h.client.On("SendRawTransaction", mock.Anything, h.target.Raw, mock.Anything).Return(h.target.Signature, nil)

	w := h.monitor(Config{ResubmitInterval: 2 * pollInterval}).Watch(context.Background(), h.target)
	for i := 0; i < 5; i++ {
		h.tick(t)
	}

	res, err := wait(t, w)
	require.NoError(t, err)
	// polls 2 and 4 rebroadcast
	assert.Equal(t, 2, res.Resubmissions)
}

func TestMonitor_ExpiryBoundIsInclusive(t *testing.T) {
	h := newHarness()
	h.onStatus([]*common.SignatureStatus{nil}, nil)
	h.client.On("GetBlockHeight", mock.Anything, mock.Anything).Return(uint64(100), nil).Once()
	h.client.On("GetBlockHeight", mock.Anything, mock.Anything).Return(uint64(101), nil).Once()

	w := h.monitor(Config{ResubmitInterval: time.Hour}).Watch(context.Background(), h.target)

	h.tick(t)
	select {
	case <-w.Done():
		t.Fatal("height equal to the bound must not expire")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, common.StatusPolling, w.Status())

	h.tick(t)
	res, err := wait(t, w)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryExpired))
	assert.Equal(t, common.StatusExpired, res.Status)
	h.client.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestMonitor_ExpiresWithoutStatus(t *testing.T) {
	h := newHarness()
	h.onStatus(nil, nil)
	h.client.On("GetBlockHeight", mock.Anything, mock.Anything).Return(uint64(250), nil)

	w := h.monitor(Config{}).Watch(context.Background(), h.target)
	h.tick(t)

	res, err := wait(t, w)
	var typed *errors.TypedError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errors.CategoryExpired, typed.Category)
	assert.Equal(t, errors.CodeBlockhashExpired, typed.Code)
	assert.Equal(t, common.StatusExpired, res.Status)
	assert.Equal(t, 0, res.Resubmissions)
}

func TestMonitor_FailedOnChain(t *testing.T) {
	h := newHarness()
	h.onStatus([]*common.SignatureStatus{{
		Slot:               9,
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
		Err:                map[string]interface{}{"InstructionError": []interface{}{0, "InvalidAccountData"}},
	}}, nil)

	w := h.monitor(Config{}).Watch(context.Background(), h.target)
	h.tick(t)

	res, err := wait(t, w)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFailed))
	assert.Equal(t, common.StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "InvalidAccountData")
	h.client.AssertNotCalled(t, "GetBlockHeight", mock.Anything, mock.Anything)
}

func TestMonitor_TransientErrorsAreSwallowed(t *testing.T) {
	h := newHarness()
	h.onStatus(nil, errors.NewRPCError("get_signature_statuses", assert.AnError)).Once()
	h.onStatus([]*common.SignatureStatus{nil}, nil).Once()
	h.onStatus(confirmed(5), nil).Once()
	h.client.On("GetBlockHeight", mock.Anything, mock.Anything).Return(uint64(0), assert.AnError).Once()

	m := metrics.New(prometheus.NewRegistry())
	w := h.monitor(Config{Metrics: m}).Watch(context.Background(), h.target)
	for i := 0; i < 3; i++ {
		h.tick(t)
	}

	res, err := wait(t, w)
	require.NoError(t, err)
	assert.Equal(t, common.StatusConfirmed, res.Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollErrorsTotal))
	h.client.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestMonitor_Cancel(t *testing.T) {
	h := newHarness()

	w := h.monitor(Config{}).Watch(context.Background(), h.target)
	w.Cancel()

	res, err := wait(t, w)
	require.Error(t, err)
	assert.Equal(t, common.StatusPolling, res.Status)
	assert.False(t, res.Status.IsTerminal())
	h.client.AssertNotCalled(t, "GetSignatureStatuses", mock.Anything, mock.Anything)
	h.client.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestMonitor_WaitsForFinality(t *testing.T) {
	gdb, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gdb.Close() })
	store := txstore.NewStore(gdb.Client(), zerolog.Nop())

	h := newHarness()
	require.NoError(t, store.Create(context.Background(), h.target.Signature.String(), h.target.Raw, h.target.Bound))

	h.onStatus(confirmed(3), nil).Twice()
	h.onStatus([]*common.SignatureStatus{{Slot: 3, ConfirmationStatus: rpc.ConfirmationStatusFinalized}}, nil).Once()

	w := h.monitor(Config{Commitment: rpc.CommitmentFinalized, Recorder: store}).Watch(context.Background(), h.target)
	for i := 0; i < 3; i++ {
		h.tick(t)
	}

	res, err := wait(t, w)
	require.NoError(t, err)
	assert.Equal(t, common.StatusFinalized, res.Status)
	h.client.AssertNotCalled(t, "GetBlockHeight", mock.Anything, mock.Anything)
	h.client.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything, mock.Anything)

	history, err := store.History(context.Background(), h.target.Signature.String())
	require.NoError(t, err)
	var path []string
	for _, tr := range history {
		path = append(path, tr.FromStatus+"->"+tr.ToStatus)
	}
	assert.Equal(t, []string{"PENDING->POLLING", "POLLING->CONFIRMED", "CONFIRMED->FINALIZED"}, path)
}

func TestMonitor_ResumeFromConfirmed(t *testing.T) {
	h := newHarness()
	h.target.Status = common.StatusConfirmed
	h.onStatus([]*common.SignatureStatus{{Slot: 3, ConfirmationStatus: rpc.ConfirmationStatusFinalized}}, nil)

	w := h.monitor(Config{Commitment: rpc.CommitmentFinalized}).Watch(context.Background(), h.target)
	assert.Equal(t, common.StatusConfirmed, w.Status())
	h.tick(t)

	res, err := wait(t, w)
	require.NoError(t, err)
	assert.Equal(t, common.StatusFinalized, res.Status)
}

// lockedBuffer collects log output written from the watch goroutine
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMonitor_NoPollAfterCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness()
		ctx, cancel := context.WithCancel(context.Background())
		w := h.monitor(Config{}).Watch(ctx, h.target)

		cancel()
		h.clock.Add(pollInterval)

		_, err := wait(t, w)
		require.Error(t, err)
		h.client.AssertNotCalled(t, "GetSignatureStatuses", mock.Anything, mock.Anything)
	}
}

func TestMonitor_FailedAfterConfirmed(t *testing.T) {
	h := newHarness()
	h.onStatus(confirmed(3), nil).Once()
	h.onStatus([]*common.SignatureStatus{{
		Slot:               4,
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
		Err:                map[string]interface{}{"InstructionError": []interface{}{0, "InvalidAccountData"}},
	}}, nil).Once()

	w := h.monitor(Config{Commitment: rpc.CommitmentFinalized}).Watch(context.Background(), h.target)
	h.tick(t)
	h.tick(t)

	res, err := wait(t, w)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFailed))
	assert.Equal(t, common.StatusFailed, res.Status)
	assert.Equal(t, common.StatusFailed, w.Status())
	assert.Contains(t, res.Reason, "InvalidAccountData")
}

func TestMonitor_BlockHeightOutageIsReported(t *testing.T) {
	h := newHarness()
	logs := &lockedBuffer{}
	h.logger = zerolog.New(logs)
	h.onStatus([]*common.SignatureStatus{nil}, nil)

	var heightCalls atomic.Int32
	h.client.On("GetBlockHeight", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { heightCalls.Add(1) }).
		Return(uint64(0), assert.AnError)

	w := h.monitor(Config{}).Watch(context.Background(), h.target)
	defer w.Cancel()

	pollOnce := func(n int32) {
		h.tick(t)
		require.Eventually(t, func() bool { return heightCalls.Load() == n }, time.Second, 5*time.Millisecond)
	}

	for i := int32(1); i < heightFailureAlert; i++ {
		pollOnce(i)
	}
	assert.NotContains(t, logs.String(), "expiry cannot be evaluated")

	pollOnce(heightFailureAlert)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "expiry cannot be evaluated")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, logs.String(), `"level":"error"`)

	select {
	case <-w.Done():
		t.Fatal("watch must keep polling while the height is unknown")
	default:
	}
	h.client.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything, mock.Anything)
}
