package events

import (
	"encoding/json"
	"strings"
	"time"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/units"
	"IntentWallet/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Type 区分事件种类。
type Type string

const (
	// TypeConfigChanged 表示 agent 配置变更，需要创建钱包或更新额度。
	TypeConfigChanged Type = "agent.config_changed"
	// TypeTokenLimit 表示为 Safe 钱包设置某个代币的额度。
	TypeTokenLimit Type = "safe.token_limit"
)

const (
	CodeEventInvalid xerrors.Code = "EVENT_INVALID"
	CodeEventPublish xerrors.Code = "EVENT_PUBLISH_FAILED"
)

func init() {
	xerrors.Register(CodeEventInvalid, xerrors.Attributes{
		Message:  "event payload invalid",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeEventPublish, xerrors.Attributes{
		Message:   "event publish failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// Event 是队列中传递的消息体。
type Event struct {
	ID            string              `json:"id"`
	Type          Type                `json:"type"`
	Agent         wallet.AgentConfig  `json:"agent"`
	PreviousKind  wallet.ProviderKind `json:"previous_wallet_provider,omitempty"`
	PreviousLimit *units.Amount       `json:"previous_weekly_spending_limit,omitempty"`
	Token         *common.Address     `json:"token,omitempty"`
	Amount        *units.Amount       `json:"amount,omitempty"`
	Attempts      int                 `json:"attempts"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// NewConfigChange 构造配置变更事件。
func NewConfigChange(agent wallet.AgentConfig, previousKind wallet.ProviderKind, previousLimit *units.Amount) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          TypeConfigChanged,
		Agent:         agent,
		PreviousKind:  previousKind,
		PreviousLimit: previousLimit,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewTokenLimit 构造代币额度事件。
func NewTokenLimit(agentID string, token common.Address, amount units.Amount) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeTokenLimit,
		Agent:      wallet.AgentConfig{ID: agentID},
		Token:      &token,
		Amount:     &amount,
		OccurredAt: time.Now().UTC(),
	}
}

// Encode 序列化事件。
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode 解析并校验事件。
func Decode(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, xerrors.Wrap(CodeEventInvalid, err, "事件不是合法 JSON")
	}
	if err := e.validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// validate 校验事件并就地规范化钱包类型。
func (e *Event) validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return xerrors.New(CodeEventInvalid, "事件缺少 id")
	}
	if strings.TrimSpace(e.Agent.ID) == "" {
		return xerrors.New(CodeEventInvalid, "事件缺少 agent.id", xerrors.WithMetadata("event_id", e.ID))
	}
	switch e.Type {
	case TypeConfigChanged:
		kind, err := wallet.ParseProviderKind(string(e.Agent.ProviderKind))
		if err != nil {
			return xerrors.Wrap(CodeEventInvalid, err, "事件钱包类型无效", xerrors.WithMetadata("event_id", e.ID))
		}
		previous, err := wallet.ParseProviderKind(string(e.PreviousKind))
		if err != nil {
			return xerrors.Wrap(CodeEventInvalid, err, "事件原钱包类型无效", xerrors.WithMetadata("event_id", e.ID))
		}
		e.Agent.ProviderKind, e.PreviousKind = kind, previous
	case TypeTokenLimit:
		if e.Token == nil || e.Amount == nil {
			return xerrors.New(CodeEventInvalid, "代币额度事件缺少 token 或 amount", xerrors.WithMetadata("event_id", e.ID))
		}
	default:
		return xerrors.New(CodeEventInvalid, "未知事件类型 "+string(e.Type), xerrors.WithMetadata("event_id", e.ID))
	}
	return nil
}
