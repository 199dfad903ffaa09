package worker

import (
	"encoding/json"
	"fmt"

	"github.com/pushchain/push-wallet-link/walletlink/errors"
)

// Request types
const (
	TypeGetInfo              = "m_get_info"
	TypeEstimateFee          = "m_estimate_fee"
	TypePushTransaction      = "m_push_tx"
	TypeSubscribeBlock       = "m_subscribe_block"
	TypeUnsubscribeBlock     = "m_unsubscribe_block"
	TypeGetTransactionStatus = "m_get_transaction_status"
)

// Response types
const (
	ResponseGetInfo              = "r_info"
	ResponseEstimateFee          = "r_estimate_fee"
	ResponsePushTransaction      = "r_push_tx"
	ResponseSubscribe            = "r_subscribe"
	ResponseUnsubscribe          = "r_unsubscribe"
	ResponseGetTransactionStatus = "r_transaction_status"
	ResponseError                = "r_error"
	ResponseNotification         = "r_notification"
)

// Request is one of the request variants declared in this package.
type Request interface {
	requestID() string
	withID(id string) Request
}

type GetInfo struct {
	ID string `json:"id"`
}

type EstimateFee struct {
	ID string `json:"id"`
	// Message is the hex encoded unsigned message
	Message           string `json:"data"`
	IsCreatingAccount bool   `json:"isCreatingAccount"`
}

type PushTransaction struct {
	ID string `json:"id"`
	// Payload is the signed transaction as hex (optionally 0x prefixed), base58 or base64
	Payload string `json:"payload"`
}

type SubscribeBlock struct {
	ID string `json:"id"`
}

type UnsubscribeBlock struct {
	ID string `json:"id"`
}

type GetTransactionStatus struct {
	ID        string `json:"id"`
	Signature string `json:"signature"`
}

func (r GetInfo) requestID() string              { return r.ID }
func (r EstimateFee) requestID() string          { return r.ID }
func (r PushTransaction) requestID() string      { return r.ID }
func (r SubscribeBlock) requestID() string       { return r.ID }
func (r UnsubscribeBlock) requestID() string     { return r.ID }
func (r GetTransactionStatus) requestID() string { return r.ID }

func (r GetInfo) withID(id string) Request              { r.ID = id; return r }
func (r EstimateFee) withID(id string) Request          { r.ID = id; return r }
func (r PushTransaction) withID(id string) Request      { r.ID = id; return r }
func (r SubscribeBlock) withID(id string) Request       { r.ID = id; return r }
func (r UnsubscribeBlock) withID(id string) Request     { r.ID = id; return r }
func (r GetTransactionStatus) withID(id string) Request { r.ID = id; return r }

// Response answers one request. Exactly one of Payload and Error is set.
type Response struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Payload any                `json:"payload,omitempty"`
	Error   *errors.TypedError `json:"error,omitempty"`
}

// Notification is an unsolicited message posted to a session
type Notification struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NotificationSink receives notifications. Implementations must not block.
type NotificationSink interface {
	Notify(Notification)
}

// NotifyFunc adapts a function to NotificationSink
type NotifyFunc func(Notification)

func (f NotifyFunc) Notify(n Notification) { f(n) }

// envelope is the wire form of a request
type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeRequest parses {"id", "type", "payload"} into a request variant.
func DecodeRequest(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.New(errors.CategoryValidation, errors.CodeInvalidParameter, "malformed request", err)
	}

	var req Request
	switch env.Type {
	case TypeGetInfo:
		req = GetInfo{}
	case TypeEstimateFee:
		var r EstimateFee
		if err := decodePayload(env, &r); err != nil {
			return nil, err
		}
		req = r
	case TypePushTransaction:
		var r PushTransaction
		if err := decodePayload(env, &r); err != nil {
			return nil, err
		}
		req = r
	case TypeSubscribeBlock:
		req = SubscribeBlock{}
	case TypeUnsubscribeBlock:
		req = UnsubscribeBlock{}
	case TypeGetTransactionStatus:
		var r GetTransactionStatus
		if err := decodePayload(env, &r); err != nil {
			return nil, err
		}
		req = r
	default:
		return nil, errors.New(errors.CategoryInternal, errors.CodeUnknownRequest,
			fmt.Sprintf("Unknown message type %q", env.Type), nil)
	}
	return req.withID(env.ID), nil
}

func decodePayload(env envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return errors.New(errors.CategoryValidation, errors.CodeInvalidParameter,
			fmt.Sprintf("malformed %s payload", env.Type), err)
	}
	return nil
}
