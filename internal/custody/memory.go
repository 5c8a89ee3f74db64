package custody

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"sync"

	xerrors "IntentWallet/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// SentTransaction 记录内存实现广播过的交易。
type SentTransaction struct {
	From common.Address
	Tx   Transaction
	Hash common.Hash
}

// SendHook 在内存实现广播交易时被调用，可用于模拟链上效果。
type SendHook func(from common.Address, tx Transaction) error

// ledger 保存内存实现共享的私钥与交易记录。
type ledger struct {
	mu   sync.Mutex
	keys map[common.Address]*ecdsa.PrivateKey
	sent []SentTransaction
	hook SendHook
}

func (l *ledger) send(from common.Address, tx Transaction) (common.Hash, error) {
	l.mu.Lock()
	hook := l.hook
	_, ok := l.keys[from]
	l.mu.Unlock()
	if !ok {
		return common.Hash{}, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知账户 %s", from.Hex()))
	}
	if hook != nil {
		if err := hook(from, tx); err != nil {
			return common.Hash{}, err
		}
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)
	hash := crypto.Keccak256Hash(from.Bytes(), tx.To.Bytes(), nonce[:], tx.Data)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, SentTransaction{From: from, Tx: tx, Hash: hash})
	return hash, nil
}

func (l *ledger) transactions() []SentTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SentTransaction(nil), l.sent...)
}

// MemoryService 是进程内的托管账户服务，用于开发环境与测试。
type MemoryService struct {
	ledger
	byName map[string]common.Address
	calls  map[string]int
}

// NewMemoryService 创建空的内存托管服务。
func NewMemoryService() *MemoryService {
	return &MemoryService{
		ledger: ledger{keys: make(map[common.Address]*ecdsa.PrivateKey)},
		byName: make(map[string]common.Address),
		calls:  make(map[string]int),
	}
}

// OnSend 设置广播钩子。
func (s *MemoryService) OnSend(hook SendHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Calls 返回指定方法的调用次数。
func (s *MemoryService) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Sent 返回已广播的交易。
func (s *MemoryService) Sent() []SentTransaction {
	return s.transactions()
}

// CreateAccount 实现 Service。同名账户返回已有地址。
func (s *MemoryService) CreateAccount(ctx context.Context, name string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CreateAccount"]++
	if addr, ok := s.byName[name]; ok {
		return Account{Name: name, Address: addr}, nil
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return Account{}, xerrors.Wrap(xerrors.CodeUnknown, err, "生成私钥失败")
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	s.keys[addr] = key
	s.byName[name] = addr
	return Account{Name: name, Address: addr}, nil
}

// ImportAccount 实现 Service。
func (s *MemoryService) ImportAccount(ctx context.Context, name string, key *ecdsa.PrivateKey) (Account, error) {
	if key == nil {
		return Account{}, xerrors.New(xerrors.CodeInvalidArgument, "导入私钥为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["ImportAccount"]++
	addr := crypto.PubkeyToAddress(key.PublicKey)
	s.keys[addr] = key
	s.byName[name] = addr
	return Account{Name: name, Address: addr}, nil
}

// SignAndSend 实现 Service。
func (s *MemoryService) SignAndSend(ctx context.Context, from common.Address, tx Transaction) (common.Hash, error) {
	s.mu.Lock()
	s.calls["SignAndSend"]++
	s.mu.Unlock()
	return s.send(from, tx)
}

// ExportAccount 实现 Service。
func (s *MemoryService) ExportAccount(ctx context.Context, address common.Address) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["ExportAccount"]++
	key, ok := s.keys[address]
	if !ok {
		return "", xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知账户 %s", address.Hex()))
	}
	return hexutil.Encode(crypto.FromECDSA(key)), nil
}

// MemoryAuthorizer 是进程内的授权服务，签名使用真实私钥。
type MemoryAuthorizer struct {
	ledger
	publicKeys []string
	wallets    map[string]common.Address
	quorums    map[string]QuorumRequest
	calls      map[string]int
}

// NewMemoryAuthorizer 创建内存授权服务。
func NewMemoryAuthorizer(publicKeys ...string) *MemoryAuthorizer {
	return &MemoryAuthorizer{
		ledger:     ledger{keys: make(map[common.Address]*ecdsa.PrivateKey)},
		publicKeys: publicKeys,
		wallets:    make(map[string]common.Address),
		quorums:    make(map[string]QuorumRequest),
		calls:      make(map[string]int),
	}
}

// OnSend 设置广播钩子。
func (a *MemoryAuthorizer) OnSend(hook SendHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hook = hook
}

// Calls 返回指定方法的调用次数。
func (a *MemoryAuthorizer) Calls(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[method]
}

// Quorum 返回创建 quorum 时的请求。
func (a *MemoryAuthorizer) Quorum(id string) (QuorumRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.quorums[id]
	return req, ok
}

// Sent 返回已广播的交易。
func (a *MemoryAuthorizer) Sent() []SentTransaction {
	return a.transactions()
}

// AuthorizationPublicKeys 实现 Authorizer。
func (a *MemoryAuthorizer) AuthorizationPublicKeys() []string {
	return append([]string(nil), a.publicKeys...)
}

// CreateKeyQuorum 实现 Authorizer。
func (a *MemoryAuthorizer) CreateKeyQuorum(ctx context.Context, req QuorumRequest) (Quorum, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls["CreateKeyQuorum"]++
	id := "kq_" + uuid.NewString()
	a.quorums[id] = req
	return Quorum{ID: id}, nil
}

// CreateWallet 实现 Authorizer。
func (a *MemoryAuthorizer) CreateWallet(ctx context.Context, ownerQuorumID string) (Wallet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls["CreateWallet"]++
	if _, ok := a.quorums[ownerQuorumID]; !ok {
		return Wallet{}, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知 key quorum %s", ownerQuorumID))
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return Wallet{}, xerrors.Wrap(xerrors.CodeUnknown, err, "生成私钥失败")
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	id := "wallet_" + uuid.NewString()
	a.keys[addr] = key
	a.wallets[id] = addr
	return Wallet{ID: id, Address: addr}, nil
}

// SignHash 实现 Authorizer。
func (a *MemoryAuthorizer) SignHash(ctx context.Context, walletID string, hash common.Hash) ([]byte, error) {
	a.mu.Lock()
	a.calls["SignHash"]++
	addr, ok := a.wallets[walletID]
	key := a.keys[addr]
	a.mu.Unlock()
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知钱包 %s", walletID))
	}
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "签名失败")
	}
	sig[64] += 27
	return sig, nil
}

// SendTransaction 实现 Authorizer。
func (a *MemoryAuthorizer) SendTransaction(ctx context.Context, walletID string, tx Transaction) (common.Hash, error) {
	a.mu.Lock()
	a.calls["SendTransaction"]++
	addr, ok := a.wallets[walletID]
	a.mu.Unlock()
	if !ok {
		return common.Hash{}, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知钱包 %s", walletID))
	}
	return a.send(addr, tx)
}

var (
	_ Service    = (*MemoryService)(nil)
	_ Authorizer = (*MemoryAuthorizer)(nil)
)
