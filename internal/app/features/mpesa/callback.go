// internal/app/features/mpesa/callback.go
package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/jamiifunds/internal/app/reconcile"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
)

// envelope is the STK push result body posted by the provider.
type envelope struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []metadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// metadataItem values are numbers or strings depending on Name.
type metadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// text renders the value without quotes; numbers keep their literal form.
func (i metadataItem) text() string {
	raw := bytes.TrimSpace(i.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}

var errMalformed = errors.New("malformed callback")

// decodeCallback turns a raw provider payload into a reconcile.Callback.
func decodeCallback(body []byte) (reconcile.Callback, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return reconcile.Callback{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	stk := env.Body.StkCallback
	if stk == nil {
		return reconcile.Callback{}, fmt.Errorf("%w: missing Body.stkCallback", errMalformed)
	}
	if strings.TrimSpace(stk.CheckoutRequestID) == "" {
		return reconcile.Callback{}, fmt.Errorf("%w: missing CheckoutRequestID", errMalformed)
	}
	if stk.ResultCode == nil {
		return reconcile.Callback{}, fmt.Errorf("%w: missing ResultCode", errMalformed)
	}

	cb := reconcile.Callback{
		CheckoutID:        strings.TrimSpace(stk.CheckoutRequestID),
		MerchantRequestID: stk.MerchantRequestID,
		ResultCode:        *stk.ResultCode,
		ResultDesc:        stk.ResultDesc,
		RawPayload:        string(body),
	}
	if stk.CallbackMetadata == nil {
		return cb, nil
	}
	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			v := item.text()
			if v == "" {
				continue
			}
			a, err := money.Parse(v)
			if err != nil {
				return reconcile.Callback{}, fmt.Errorf("%w: amount %q: %v", errMalformed, v, err)
			}
			cb.Amount = &a
		case "MpesaReceiptNumber":
			cb.Receipt = item.text()
		case "PhoneNumber":
			cb.Phone = item.text()
		}
	}
	return cb, nil
}
