package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"investsystem/internal/model"
)

// ============================================================================
// Webhook 事件解析
// ============================================================================
//
// 渠道回调是一个动态的 JSON 包，metadata 里按 payment_type 塞不同字段。
// 这里在边界上一次性解析 + 按类型校验必填字段，产出一个字段确定的
// PaymentEvent，对账引擎内部不再做任何 map 式的临时取值。
//
// ============================================================================

var (
	// ErrEventIgnored 非"支付成功"事件，直接忽略（不是错误，回 2xx 防止渠道重试）
	ErrEventIgnored = errors.New("事件类型不处理")
	// ErrMalformedEvent 事件缺少必要字段，属于业务性拒绝，不会产生任何写入
	ErrMalformedEvent = errors.New("事件载荷不完整")
	// ErrUnsupportedPurpose 未知的支付类型
	ErrUnsupportedPurpose = errors.New("不支持的支付类型")
)

// webhookPayload Flutterwave 回调的原始结构
type webhookPayload struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	ID     int64       `json:"id"`
	TxRef  string      `json:"tx_ref"`
	Amount int64       `json:"amount"`
	Status string      `json:"status"`
	Meta   webhookMeta `json:"meta"`
}

type webhookMeta struct {
	UserUID     string `json:"user_uid"`
	PaymentType string `json:"payment_type"`
	ProjectID   string `json:"project_id"`
	Slots       int    `json:"slots"`
	ReferrerUID string `json:"referrer_uid"`
}

// PaymentEvent 校验完毕、字段确定的支付成功事件
// Purpose 只会是 reg_fee 或 investment；按类型必填的字段已保证非空
type PaymentEvent struct {
	TxRef         string
	FlutterwaveID int64
	UserUID       string
	Amount        int64
	Purpose       string
	ProjectID     string // Purpose == investment 时非空
	Slots         int    // Purpose == investment 时 >= 1
	ReferrerUID   string // Purpose == reg_fee 时可选
}

// ParsePaymentEvent 解析并校验原始回调载荷
// 只有"charge.completed 且 status=successful"的事件会推进状态机，
// 其余一律 ErrEventIgnored
func ParsePaymentEvent(rawBody []byte) (*PaymentEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if payload.Event != "charge.completed" || payload.Data.Status != "successful" {
		return nil, ErrEventIgnored
	}

	data := payload.Data
	if data.TxRef == "" {
		return nil, fmt.Errorf("%w: 缺少 tx_ref", ErrMalformedEvent)
	}
	if data.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount 必须为正", ErrMalformedEvent)
	}
	if data.Meta.UserUID == "" {
		return nil, fmt.Errorf("%w: 缺少 meta.user_uid", ErrMalformedEvent)
	}

	event := &PaymentEvent{
		TxRef:         data.TxRef,
		FlutterwaveID: data.ID,
		UserUID:       data.Meta.UserUID,
		Amount:        data.Amount,
		Purpose:       data.Meta.PaymentType,
		ReferrerUID:   data.Meta.ReferrerUID,
	}

	switch data.Meta.PaymentType {
	case model.PaymentPurposeRegFee:
		// referrer_uid 可选，无需额外校验

	case model.PaymentPurposeInvestment:
		if data.Meta.ProjectID == "" {
			return nil, fmt.Errorf("%w: 投资事件缺少 meta.project_id", ErrMalformedEvent)
		}
		event.ProjectID = data.Meta.ProjectID
		event.Slots = data.Meta.Slots
		if event.Slots <= 0 {
			// 渠道侧老版本收银台不传 slots，默认 1 份
			event.Slots = 1
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPurpose, data.Meta.PaymentType)
	}

	return event, nil
}
