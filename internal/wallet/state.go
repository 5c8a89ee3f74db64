package wallet

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"IntentWallet/internal/safe"

	"github.com/ethereum/go-ethereum/common"
)

// StateVersion 是当前 provider state 的结构版本。
const StateVersion = 1

// CustodialStatus 表示托管钱包进度。
type CustodialStatus string

const (
	CustodialPending  CustodialStatus = "pending"
	CustodialCreated  CustodialStatus = "created"
	CustodialMigrated CustodialStatus = "migrated"
)

// DelegatedCreated 是委托钱包唯一的终态。
const DelegatedCreated = "created"

// ProviderState 是带版本的钱包状态，最多携带一个与钱包类型对应的变体。
type ProviderState struct {
	Version   int             `json:"version"`
	Custodial *CustodialState `json:"custodial,omitempty"`
	Safe      *SafeState      `json:"safe,omitempty"`
	Delegated *DelegatedState `json:"delegated,omitempty"`
	Native    *NativeState    `json:"native,omitempty"`
}

// CustodialState 记录托管账户。LegacySeed 为旧版本地生成钱包的十六进制种子，
// 迁移到托管服务后清空。
type CustodialState struct {
	LegacySeed    string          `json:"legacy_seed,omitempty"`
	LegacyAddress string          `json:"legacy_address,omitempty"`
	AccountName   string          `json:"account_name,omitempty"`
	Status        CustodialStatus `json:"status,omitempty"`
}

// SafeState 记录 Safe 钱包的所有者钱包与部署进度。
type SafeState struct {
	OwnerWalletID string          `json:"owner_wallet_id,omitempty"`
	OwnerAddress  string          `json:"owner_address,omitempty"`
	OwnerQuorumID string          `json:"owner_quorum_id,omitempty"`
	SafeAddress   string          `json:"safe_address,omitempty"`
	NetworkID     string          `json:"network_id,omitempty"`
	RPCURL        string          `json:"rpc_url,omitempty"`
	Status        safe.Status     `json:"status"`
	NextNonce     *uint64         `json:"next_nonce,omitempty"`
	TxHashes      []safe.TxRecord `json:"tx_hashes,omitempty"`
}

// DelegatedState 记录由 key quorum 持有的委托钱包。
type DelegatedState struct {
	WalletID      string `json:"wallet_id"`
	WalletAddress string `json:"wallet_address"`
	OwnerQuorumID string `json:"owner_quorum_id,omitempty"`
	NetworkID     string `json:"network_id,omitempty"`
	Status        string `json:"status"`
}

// NativeState 记录本地加密保存的私钥。
type NativeState struct {
	NetworkID    string          `json:"network_id,omitempty"`
	EncryptedKey json.RawMessage `json:"encrypted_key"`
	Address      string          `json:"address"`
}

// legacySeedBlob 是旧版托管钱包导出的种子格式。
type legacySeedBlob struct {
	DefaultAddressID string `json:"default_address_id"`
	Seed             string `json:"seed"`
}

// DecodeState 解析持久化的状态。空输入返回零值；无版本号但包含 seed 的旧格式
// 会被转换为托管状态。
func DecodeState(raw []byte) (ProviderState, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" || text == "{}" {
		return ProviderState{Version: StateVersion}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ProviderState{}, corrupt("", "钱包状态不是合法 JSON: %v", err)
	}
	if _, versioned := fields["version"]; !versioned {
		if _, legacy := fields["seed"]; legacy {
			var blob legacySeedBlob
			if err := json.Unmarshal(raw, &blob); err != nil {
				return ProviderState{}, corrupt("", "旧版种子格式无法解析: %v", err)
			}
			return ProviderState{
				Version: StateVersion,
				Custodial: &CustodialState{
					LegacySeed:    blob.Seed,
					LegacyAddress: blob.DefaultAddressID,
					Status:        CustodialPending,
				},
			}, nil
		}
		return ProviderState{}, corrupt("", "钱包状态缺少版本号")
	}

	var state ProviderState
	if err := json.Unmarshal(raw, &state); err != nil {
		return ProviderState{}, corrupt("", "钱包状态无法解析: %v", err)
	}
	if state.Version != StateVersion {
		return ProviderState{}, corrupt("", "不支持的钱包状态版本 %d", state.Version)
	}
	return state, nil
}

// KindForState 返回读取记录时应使用的类型。旧版种子行的类型列可能仍是默认值
// none，这类记录按托管钱包处理，以便走迁移流程。
func KindForState(kind ProviderKind, state ProviderState) ProviderKind {
	if !kind.IsSet() && state.Custodial != nil && state.Custodial.LegacySeed != "" {
		return KindCustodial
	}
	return kind
}

// Encode 序列化状态并写入当前版本号。
func (s ProviderState) Encode() ([]byte, error) {
	s.Version = StateVersion
	return json.Marshal(s)
}

// Empty 表示没有任何变体。
func (s ProviderState) Empty() bool {
	return s.Custodial == nil && s.Safe == nil && s.Delegated == nil && s.Native == nil
}

// Clone 返回深拷贝。
func (s ProviderState) Clone() ProviderState {
	out := ProviderState{Version: s.Version}
	if s.Custodial != nil {
		c := *s.Custodial
		out.Custodial = &c
	}
	if s.Safe != nil {
		c := *s.Safe
		if s.Safe.NextNonce != nil {
			n := *s.Safe.NextNonce
			c.NextNonce = &n
		}
		c.TxHashes = append([]safe.TxRecord(nil), s.Safe.TxHashes...)
		out.Safe = &c
	}
	if s.Delegated != nil {
		c := *s.Delegated
		out.Delegated = &c
	}
	if s.Native != nil {
		c := *s.Native
		c.EncryptedKey = append(json.RawMessage(nil), s.Native.EncryptedKey...)
		out.Native = &c
	}
	return out
}

// Validate 检查状态与钱包类型一致，且当前进度所需字段齐全。
func (s ProviderState) Validate(agentID string, kind ProviderKind) error {
	variants := 0
	for _, set := range []bool{s.Custodial != nil, s.Safe != nil, s.Delegated != nil, s.Native != nil} {
		if set {
			variants++
		}
	}
	if variants > 1 {
		return corrupt(agentID, "钱包状态包含多个变体")
	}
	if variants == 0 {
		return nil
	}

	switch {
	case s.Custodial != nil:
		if kind != KindCustodial {
			return corrupt(agentID, "托管状态与钱包类型 %s 不符", kind)
		}
		return s.Custodial.validate(agentID)
	case s.Safe != nil:
		if kind != KindSafe {
			return corrupt(agentID, "Safe 状态与钱包类型 %s 不符", kind)
		}
		return s.Safe.validate(agentID)
	case s.Delegated != nil:
		if kind != KindDelegated {
			return corrupt(agentID, "委托钱包状态与钱包类型 %s 不符", kind)
		}
		if s.Delegated.WalletID == "" || !common.IsHexAddress(s.Delegated.WalletAddress) {
			return corrupt(agentID, "委托钱包状态缺少钱包 ID 或地址")
		}
	case s.Native != nil:
		if kind != KindNative {
			return corrupt(agentID, "本地密钥状态与钱包类型 %s 不符", kind)
		}
		if len(s.Native.EncryptedKey) == 0 || !common.IsHexAddress(s.Native.Address) {
			return corrupt(agentID, "本地密钥状态缺少密钥或地址")
		}
	}
	return nil
}

func (c *CustodialState) validate(agentID string) error {
	if c.LegacySeed == "" {
		return nil
	}
	if _, err := hex.DecodeString(strings.TrimPrefix(c.LegacySeed, "0x")); err != nil {
		return corrupt(agentID, "旧版种子不是十六进制")
	}
	if !common.IsHexAddress(c.LegacyAddress) {
		return corrupt(agentID, "旧版种子缺少有效地址")
	}
	return nil
}

func (s *SafeState) validate(agentID string) error {
	if !s.Status.Valid() {
		return corrupt(agentID, "未知的 Safe 状态 %q", s.Status)
	}
	if s.Status.Rank() >= safe.StatusCustodyWalletCreated.Rank() {
		if s.OwnerWalletID == "" || !common.IsHexAddress(s.OwnerAddress) {
			return corrupt(agentID, "Safe 状态 %s 缺少所有者钱包", s.Status)
		}
	}
	if s.Status.Rank() >= safe.StatusSafeDeployed.Rank() && !common.IsHexAddress(s.SafeAddress) {
		return corrupt(agentID, "Safe 状态 %s 缺少 Safe 地址", s.Status)
	}
	return nil
}

// advance 仅在新状态更靠后时更新进度。
func (s *SafeState) advance(status safe.Status) {
	if status.Rank() > s.Status.Rank() {
		s.Status = status
	}
}
