package safe

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"IntentWallet/internal/custody"
	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/nonce"
	"IntentWallet/internal/observability/metrics"
	"IntentWallet/internal/units"
	"IntentWallet/internal/web3"
	"IntentWallet/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollAttempts = 10
	defaultPollInitial  = 2 * time.Second
	defaultPollMax      = 30 * time.Second
	// WeekMinutes is the default allowance reset period.
	WeekMinutes uint16 = 7 * 24 * 60
)

var (
	errNotDeployed = stdErrors.New("safe code not yet present")
	errPending     = stdErrors.New("transaction not yet mined")
	errReverted    = stdErrors.New("transaction reverted")
)

// Orchestrator runs Safe deployment and allowance configuration.
type Orchestrator struct {
	chains   Chains
	decimals DecimalsCache
	cfg      Config
	log      *slog.Logger
	tracer   trace.Tracer

	codeMu        sync.Mutex
	creationCodes map[common.Address][]byte
}

// Option customises the orchestrator.
type Option func(*Orchestrator)

// WithDecimalsCache replaces the in-process decimals cache.
func WithDecimalsCache(cache DecimalsCache) Option {
	return func(o *Orchestrator) {
		if cache != nil {
			o.decimals = cache
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// NewOrchestrator wires an orchestrator over the chain registry.
func NewOrchestrator(chains Chains, cfg Config, opts ...Option) (*Orchestrator, error) {
	if chains == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Safe 编排器缺少链注册表")
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaultPollAttempts
	}
	if cfg.PollInitial <= 0 {
		cfg.PollInitial = defaultPollInitial
	}
	if cfg.PollMax <= 0 {
		cfg.PollMax = defaultPollMax
	}
	if cfg.ResetMinutes == 0 {
		cfg.ResetMinutes = WeekMinutes
	}
	o := &Orchestrator{
		chains:        chains,
		decimals:      NewMemoryDecimals(),
		cfg:           cfg,
		log:           logger.Named("safe"),
		tracer:        otel.Tracer("IntentWallet/safe"),
		creationCodes: make(map[common.Address][]byte),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// DeployWithAllowance predicts the owner's Safe address, deploys it if
// needed, enables the allowance module and sets the weekly limit on the
// reference token. A nil WeeklyLimit configures a zero allowance.
func (o *Orchestrator) DeployWithAllowance(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	ctx, span := o.startSpan(ctx, "safe.deploy_with_allowance", req.NetworkID, req.Owner)
	defer span.End()

	result, err := o.deploy(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("safe", result.SafeAddress.Hex()))
	span.SetStatus(codes.Ok, "limit configured")
	return result, nil
}

func (o *Orchestrator) deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	s, err := o.open(ctx, req.NetworkID, req.RPCURL, req.Owner)
	if err != nil {
		return nil, err
	}
	if s.chain.ReferenceToken == (common.Address{}) {
		return nil, web3.ChainConfigMissing(s.chain.NetworkID, "reference_token")
	}

	creationCode, err := o.proxyCreationCode(ctx, s)
	if err != nil {
		return nil, err
	}
	saltNonce := new(big.Int).SetUint64(o.cfg.SaltNonce)
	s.safe, err = PredictAddress(s.chain.Safe, creationCode, s.owner.Address(), saltNonce)
	if err != nil {
		return nil, err
	}

	deployed, err := s.deployed(ctx)
	if err != nil {
		return nil, err
	}
	newly := false
	if deployed {
		s.safeNonce = s.remoteSafeNonce()
	} else {
		initializer, err := Initializer(s.owner.Address(), s.chain.Safe.FallbackHandler)
		if err != nil {
			return nil, err
		}
		data, err := proxyFactoryABI.Pack("createProxyWithNonce", s.chain.Safe.Singleton, initializer, saltNonce)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 createProxyWithNonce 失败")
		}
		rec, err := s.send(ctx, KindDeploySafe, s.chain.Safe.ProxyFactory, data)
		if err != nil {
			return nil, err
		}
		if err := o.awaitReceipt(ctx, s, rec); err != nil {
			return nil, err
		}
		if err := o.waitDeployed(ctx, s); err != nil {
			return nil, err
		}
		s.safeNonce = nonce.Seeded(0)
		newly = true
	}
	if err := s.checkpoint(ctx, req.Checkpoint, StatusSafeDeployed, nil); err != nil {
		return nil, err
	}

	amount := units.Amount{}
	if req.WeeklyLimit != nil {
		amount = *req.WeeklyLimit
	}
	limit, err := o.configureLimit(ctx, s, s.chain.ReferenceToken, amount, nil, req.Checkpoint)
	if err != nil {
		return nil, err
	}

	o.log.Info("Safe 已就绪",
		slog.String("network", s.chain.NetworkID),
		slog.String("safe", s.safe.Hex()),
		slog.Bool("newly_deployed", newly),
		slog.Uint64("next_nonce", limit.NextNonce))

	return &DeployResult{
		SafeAddress:     s.safe,
		NewlyDeployed:   newly,
		ModuleEnabled:   limit.ModuleEnabled,
		LimitConfigured: limit.LimitConfigured,
		TxHashes:        s.txs,
		NextNonce:       limit.NextNonce,
		Status:          StatusLimitConfigured,
	}, nil
}

func (o *Orchestrator) proxyCreationCode(ctx context.Context, s *session) ([]byte, error) {
	if len(s.chain.Safe.ProxyCreationCode) > 0 {
		return s.chain.Safe.ProxyCreationCode, nil
	}
	factory := s.chain.Safe.ProxyFactory
	o.codeMu.Lock()
	cached, ok := o.creationCodes[factory]
	o.codeMu.Unlock()
	if ok {
		return cached, nil
	}
	out, err := s.call(ctx, factory, proxyFactoryABI, "proxyCreationCode")
	if err != nil {
		return nil, err
	}
	code, ok := out[0].([]byte)
	if !ok || len(code) == 0 {
		return nil, xerrors.New(xerrors.CodeUpstreamRejected, "代理工厂未返回创建字节码")
	}
	o.codeMu.Lock()
	o.creationCodes[factory] = code
	o.codeMu.Unlock()
	return code, nil
}

// pollPolicy is the bounded exponential backoff shared by every chain poll.
func (o *Orchestrator) pollPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.cfg.PollInitial
	policy.MaxInterval = o.cfg.PollMax
	policy.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(o.cfg.PollAttempts-1)), ctx)
}

// awaitReceipt polls for the receipt of rec. A reverted or never mined
// transaction is irrecoverable.
func (o *Orchestrator) awaitReceipt(ctx context.Context, s *session, rec TxRecord) error {
	var receipt *coretypes.Receipt
	err := backoff.Retry(func() error {
		r, err := s.client.TransactionReceipt(ctx, rec.Hash)
		switch {
		case stdErrors.Is(err, gethcore.NotFound) || (err == nil && r == nil):
			return errPending
		case err != nil:
			if xerrors.RetryableError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		receipt = r
		return nil
	}, o.pollPolicy(ctx))

	opts := []xerrors.Option{
		xerrors.WithNetwork(s.chain.NetworkID),
		xerrors.WithMetadata("safe", s.safe.Hex()),
		xerrors.WithMetadata("kind", string(rec.Kind)),
		xerrors.WithMetadata("tx_hash", rec.Hash.Hex()),
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待交易回执被取消")
	case stdErrors.Is(err, errPending) || xerrors.RetryableError(err):
		return web3.Irrecoverable(err, fmt.Sprintf("%s 交易 %s 在 %d 次检查后仍未上链", rec.Kind, rec.Hash.Hex(), o.cfg.PollAttempts), opts...)
	default:
		return err
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		logger.Audit().Error("chain transaction reverted",
			slog.String("network", s.chain.NetworkID),
			slog.String("kind", string(rec.Kind)),
			slog.String("safe", s.safe.Hex()),
			slog.String("tx_hash", rec.Hash.Hex()))
		return web3.Irrecoverable(errReverted, fmt.Sprintf("%s 交易 %s 已回滚", rec.Kind, rec.Hash.Hex()), opts...)
	}
	return nil
}

// waitDeployed polls for proxy code with bounded exponential backoff.
func (o *Orchestrator) waitDeployed(ctx context.Context, s *session) error {
	bounded := o.pollPolicy(ctx)

	started := time.Now()
	err := backoff.Retry(func() error {
		deployed, err := s.deployed(ctx)
		if err != nil {
			if xerrors.RetryableError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if !deployed {
			return errNotDeployed
		}
		return nil
	}, bounded)
	if err == nil {
		metrics.ObserveDeploymentWait(s.chain.NetworkID, time.Since(started))
		return nil
	}
	if ctx.Err() != nil {
		return xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待 Safe 部署被取消")
	}
	if stdErrors.Is(err, errNotDeployed) || xerrors.RetryableError(err) {
		return web3.Irrecoverable(err, fmt.Sprintf("Safe %s 部署在 %d 次检查后仍未确认", s.safe.Hex(), o.cfg.PollAttempts),
			xerrors.WithNetwork(s.chain.NetworkID),
			xerrors.WithMetadata("safe", s.safe.Hex()))
	}
	return err
}

func (o *Orchestrator) open(ctx context.Context, networkID, rpcURL string, owner Owner) (*session, error) {
	if owner == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 Safe 所有者")
	}
	chain, err := o.chains.Resolve(networkID, rpcURL)
	if err != nil {
		return nil, err
	}
	if !chain.SupportsSafe() {
		return nil, web3.ChainConfigMissing(chain.NetworkID, "safe")
	}
	client, err := o.chains.Client(ctx, chain)
	if err != nil {
		return nil, err
	}
	s := &session{
		chain:  chain,
		client: client,
		owner:  owner,
		gas:    o.cfg.ExecGasLimit,
	}
	s.ownerNonce = nonce.NewSequencer(nonce.SourceFunc(func(ctx context.Context) (uint64, error) {
		metrics.ObserveNonceQuery(chain.NetworkID, "owner")
		return client.PendingNonceAt(ctx, owner.Address())
	}))
	return s, nil
}

func (o *Orchestrator) startSpan(ctx context.Context, name, networkID string, owner Owner) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("network", networkID)}
	if owner != nil {
		attrs = append(attrs, attribute.String("owner", owner.Address().Hex()))
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// session is the state of one top-level call. It is never shared.
type session struct {
	chain      web3.ChainConfig
	client     web3.Client
	owner      Owner
	safe       common.Address
	gas        uint64
	safeNonce  *nonce.Sequencer
	ownerNonce *nonce.Sequencer
	txs        []TxRecord
}

func (s *session) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("编码 %s 失败", method))
	}
	raw, err := s.client.CallContract(ctx, gethcore.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, err
	}
	out, err := contract.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, xerrors.New(xerrors.CodeUpstreamRejected, fmt.Sprintf("解析 %s 返回值失败 (合约 %s)", method, to.Hex()))
	}
	return out, nil
}

func (s *session) deployed(ctx context.Context) (bool, error) {
	code, err := s.client.CodeAt(ctx, s.safe)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (s *session) moduleEnabled(ctx context.Context) (bool, error) {
	out, err := s.call(ctx, s.safe, safeABI, "isModuleEnabled", s.chain.Safe.AllowanceModule)
	if err != nil {
		return false, err
	}
	enabled, ok := out[0].(bool)
	if !ok {
		return false, xerrors.New(xerrors.CodeUpstreamRejected, "isModuleEnabled 返回类型异常")
	}
	return enabled, nil
}

func (s *session) safeNonceSource() nonce.Source {
	return nonce.SourceFunc(func(ctx context.Context) (uint64, error) {
		metrics.ObserveNonceQuery(s.chain.NetworkID, "safe")
		out, err := s.call(ctx, s.safe, safeABI, "nonce")
		if err != nil {
			return 0, err
		}
		n, ok := out[0].(*big.Int)
		if !ok || !n.IsUint64() {
			return 0, xerrors.New(xerrors.CodeUpstreamRejected, "Safe nonce 返回值异常")
		}
		return n.Uint64(), nil
	})
}

func (s *session) remoteSafeNonce() *nonce.Sequencer {
	return nonce.NewSequencer(s.safeNonceSource())
}

// exec signs a Safe transaction at the next Safe nonce and submits it through
// execTransaction from the owner.
func (s *session) exec(ctx context.Context, kind TxKind, to common.Address, data []byte, op Operation) (TxRecord, error) {
	safeNonce, err := s.safeNonce.Next(ctx)
	if err != nil {
		return TxRecord{}, err
	}
	digest := TxHash(s.chain.ChainID, s.safe, Tx{To: to, Data: data, Operation: op, Nonce: safeNonce})
	sig, err := s.owner.SignHash(ctx, digest)
	if err != nil {
		return TxRecord{}, err
	}
	if len(sig) != 65 {
		return TxRecord{}, xerrors.New(xerrors.CodeUpstreamRejected, fmt.Sprintf("签名长度非法: %d", len(sig)))
	}
	zero := new(big.Int)
	calldata, err := safeABI.Pack("execTransaction", to, zero, data, uint8(op), zero, zero, zero, common.Address{}, common.Address{}, sig)
	if err != nil {
		return TxRecord{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 execTransaction 失败")
	}
	rec, err := s.send(ctx, kind, s.safe, calldata)
	if err != nil {
		return TxRecord{}, err
	}
	rec.SafeNonce = &safeNonce
	s.txs[len(s.txs)-1] = rec
	return rec, nil
}

// send broadcasts an owner EOA transaction at the next owner nonce.
func (s *session) send(ctx context.Context, kind TxKind, to common.Address, data []byte) (TxRecord, error) {
	n, err := s.ownerNonce.Next(ctx)
	if err != nil {
		return TxRecord{}, err
	}
	hash, err := s.owner.SendTransaction(ctx, custody.Transaction{
		ChainID: s.chain.ChainID,
		To:      to,
		Data:    data,
		Nonce:   n,
		Gas:     s.gas,
	})
	if err != nil {
		return TxRecord{}, err
	}
	metrics.ObserveTransaction(s.chain.NetworkID, string(kind))
	logger.Audit().Info("chain transaction submitted",
		slog.String("network", s.chain.NetworkID),
		slog.String("kind", string(kind)),
		slog.String("from", s.owner.Address().Hex()),
		slog.String("to", to.Hex()),
		slog.String("safe", s.safe.Hex()),
		slog.Uint64("nonce", n),
		slog.String("tx_hash", hash.Hex()))

	rec := TxRecord{Kind: kind, Hash: hash, Nonce: n}
	s.txs = append(s.txs, rec)
	return rec, nil
}

func (s *session) checkpoint(ctx context.Context, cp Checkpoint, status Status, next *uint64) error {
	if cp == nil {
		return nil
	}
	return cp(ctx, Progress{
		Status:      status,
		SafeAddress: s.safe,
		NextNonce:   next,
		TxHashes:    append([]TxRecord(nil), s.txs...),
	})
}
