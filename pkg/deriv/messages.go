package deriv

import (
	"encoding/json"
	"fmt"
)

// Request is an outbound message that carries a correlation id. The set of
// implementations below is the closed set of request kinds this client
// speaks; nothing outside this package can add to it.
type Request interface {
	setReqID(id int64)
}

// AuthorizeRequest authenticates the connection with an API token.
type AuthorizeRequest struct {
	Authorize string `json:"authorize"`
	ReqID     int64  `json:"req_id"`
}

func (r *AuthorizeRequest) setReqID(id int64) { r.ReqID = id }

// PingRequest is the liveness probe.
type PingRequest struct {
	Ping  int   `json:"ping"`
	ReqID int64 `json:"req_id"`
}

func (r *PingRequest) setReqID(id int64) { r.ReqID = id }

// BalanceRequest queries the account balance.
type BalanceRequest struct {
	Balance int   `json:"balance"`
	ReqID   int64 `json:"req_id"`
}

func (r *BalanceRequest) setReqID(id int64) { r.ReqID = id }

// BuyRequest places a binary-options contract.
type BuyRequest struct {
	Buy        int           `json:"buy"`
	Price      float64       `json:"price"`
	Parameters BuyParameters `json:"parameters"`
	ReqID      int64         `json:"req_id"`
}

func (r *BuyRequest) setReqID(id int64) { r.ReqID = id }

// BuyParameters describes the contract being bought. Durations are in ticks.
type BuyParameters struct {
	ContractType string  `json:"contract_type"` // CALL or PUT
	Symbol       string  `json:"symbol"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"` // "t"
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"` // "stake"
}

// TicksRequest opens a tick stream subscription for one symbol.
type TicksRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe"`
	ReqID     int64  `json:"req_id"`
}

func (r *TicksRequest) setReqID(id int64) { r.ReqID = id }

// OpenContractRequest opens a contract-status stream subscription covering
// all of the account's open contracts.
type OpenContractRequest struct {
	ProposalOpenContract int   `json:"proposal_open_contract"`
	Subscribe            int   `json:"subscribe"`
	ReqID                int64 `json:"req_id"`
}

func (r *OpenContractRequest) setReqID(id int64) { r.ReqID = id }

// ForgetAllRequest drops every live subscription of a stream type.
type ForgetAllRequest struct {
	ForgetAll string `json:"forget_all"`
	ReqID     int64  `json:"req_id"`
}

func (r *ForgetAllRequest) setReqID(id int64) { r.ReqID = id }

// Message is one inbound frame, either a correlated response or a push.
// The payload stays raw until Decode picks out the typed variant.
type Message struct {
	ReqID   int64
	MsgType string
	Err     *APIError
	raw     []byte
}

// Decode unmarshals the payload field named after the message type into v.
func (m *Message) Decode(v any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.raw, &fields); err != nil {
		return fmt.Errorf("deriv: decode %s payload: %w", m.MsgType, err)
	}
	payload, ok := fields[m.MsgType]
	if !ok {
		return fmt.Errorf("deriv: response missing %q payload", m.MsgType)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("deriv: decode %s payload: %w", m.MsgType, err)
	}
	return nil
}

func parseMessage(data []byte) (*Message, error) {
	var frame struct {
		ReqID   int64  `json:"req_id"`
		MsgType string `json:"msg_type"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	msg := &Message{ReqID: frame.ReqID, MsgType: frame.MsgType, raw: data}
	if frame.Error != nil {
		msg.Err = &APIError{Code: frame.Error.Code, Message: frame.Error.Message}
	}
	return msg, nil
}

// AuthorizeResult is the payload of a successful authorize response.
type AuthorizeResult struct {
	LoginID  string  `json:"loginid"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// BalanceResult is the payload of a balance response.
type BalanceResult struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// BuyResult is the payload of a successful buy response.
type BuyResult struct {
	ContractID    int64   `json:"contract_id"`
	TransactionID int64   `json:"transaction_id"`
	BuyPrice      float64 `json:"buy_price"`
	Payout        float64 `json:"payout"`
	StartTime     int64   `json:"start_time"`
	LongCode      string  `json:"longcode"`
}

// Tick is one price update pushed on a tick subscription.
type Tick struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
}

// ContractStatus is one push on the open-contract stream. The venue sends
// is_sold as 0/1.
type ContractStatus struct {
	ContractID  int64   `json:"contract_id"`
	CurrentSpot float64 `json:"current_spot"`
	BuyPrice    float64 `json:"buy_price"`
	SellPrice   float64 `json:"sell_price"`
	SellSpot    float64 `json:"sell_spot"`
	Payout      float64 `json:"payout"`
	IsSold      int     `json:"is_sold"`
	Status      string  `json:"status"`
}

// Sold reports whether the contract has settled.
func (c ContractStatus) Sold() bool { return c.IsSold == 1 }

// Push topics routed by the message pump to subscription handlers.
const (
	TopicTick         = "tick"
	TopicOpenContract = "proposal_open_contract"
)
