package reconciler

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CallbackEnvelope mirrors the gateway's nested callback body:
// Body.stkCallback.{MerchantRequestID, ResultCode, ResultDesc, CallbackMetadata.Item[]}.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// MetadataItem values arrive as numbers or strings depending on the field;
// Value is kept raw and converted on extraction.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// Metadata is the flattened view of the recognized callback items.
// Unrecognized names are ignored; absent items leave zero values.
type Metadata struct {
	Amount          float64
	ReceiptNumber   string
	PhoneNumber     string
	TransactionDate int64
}

func ParseCallback(raw []byte) (*StkCallback, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unparseable callback body: %w", err)
	}
	if env.Body.StkCallback.MerchantRequestID == "" {
		return nil, fmt.Errorf("callback missing Body.stkCallback.MerchantRequestID")
	}
	return &env.Body.StkCallback, nil
}

func (cb *StkCallback) Metadata() Metadata {
	var m Metadata
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			m.Amount = asFloat(item.Value)
		case "MpesaReceiptNumber":
			m.ReceiptNumber = asString(item.Value)
		case "PhoneNumber":
			m.PhoneNumber = asString(item.Value)
		case "TransactionDate":
			m.TransactionDate = int64(asFloat(item.Value))
		}
	}
	return m
}

func asString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func asFloat(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}
