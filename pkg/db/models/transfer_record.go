package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	TransferRecordCollection = "transfer_records"
	IbcDenomPrefix           = "ibc/"
)

// TransferRecord is one cross-chain transfer attempt, keyed by RecordID.
type TransferRecord struct {
	RecordID       string `bson:"record_id" json:"record_id" validate:"required"`
	SourceAddr     string `bson:"sc_addr" json:"sc_addr"`
	DestAddr       string `bson:"dc_addr" json:"dc_addr"`
	SourcePort     string `bson:"sc_port" json:"sc_port"`
	SourceChannel  string `bson:"sc_channel" json:"sc_channel"`
	SourceChainID  string `bson:"sc_chain_id" json:"sc_chain_id"`
	DestPort       string `bson:"dc_port" json:"dc_port"`
	DestChannel    string `bson:"dc_channel" json:"dc_channel"`
	DestChainID    string `bson:"dc_chain_id" json:"dc_chain_id"`
	Sequence       string `bson:"sequence" json:"sequence"`
	Status         Status `bson:"status" json:"status" validate:"transfer_status"`
	SourceTxInfo   bson.M `bson:"sc_tx_info,omitempty" json:"sc_tx_info,omitempty"`
	DestTxInfo     bson.M `bson:"dc_tx_info,omitempty" json:"dc_tx_info,omitempty"`
	RefundedTxInfo bson.M `bson:"refunded_tx_info,omitempty" json:"refunded_tx_info,omitempty"`
	Log            TxLogs `bson:"log" json:"log"`
	Denoms         Denoms `bson:"denoms" json:"denoms"`
	BaseDenom      string `bson:"base_denom" json:"base_denom"`
	CreatedAt      int64  `bson:"create_at" json:"create_at"`
	UpdatedAt      int64  `bson:"update_at" json:"update_at"`
	TxTime         int64  `bson:"tx_time" json:"tx_time"`
}

type TxLogs struct {
	SourceLog string `bson:"sc_log,omitempty" json:"sc_log,omitempty"`
	DestLog   string `bson:"dc_log,omitempty" json:"dc_log,omitempty"`
}

type Denoms struct {
	SourceDenom string `bson:"sc_denom,omitempty" json:"sc_denom,omitempty"`
	DestDenom   string `bson:"dc_denom,omitempty" json:"dc_denom,omitempty"`
}

// ChainPair is a distinct (source chain, destination chain) combination.
type ChainPair struct {
	SourceChainID string `bson:"sc_chain_id" json:"sc_chain_id"`
	DestChainID   string `bson:"dc_chain_id" json:"dc_chain_id"`
}

// ChannelChain is a channel id together with the chain it lives on.
type ChannelChain struct {
	Channel string `bson:"channel" json:"channel"`
	ChainID string `bson:"chain_id" json:"chain_id"`
}

var validate = NewValidator()

// NewValidator returns a validator that knows the transfer_status tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("transfer_status", func(fl validator.FieldLevel) bool {
		status, ok := fl.Field().Interface().(Status)
		return ok && status.IsValid()
	})
	return v
}

func (r *TransferRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("transfer record is nil")
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid transfer record %q: %w", r.RecordID, err)
	}
	return nil
}

func IsIbcDenom(denom string) bool {
	return strings.HasPrefix(denom, IbcDenomPrefix)
}
