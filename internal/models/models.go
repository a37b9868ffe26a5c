package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// User is a Telegram customer with a wallet balance
type User struct {
	ID         int64     `db:"id" json:"id"`
	TelegramID string    `db:"user_id" json:"user_id"`
	FirstName  string    `db:"first_name" json:"first_name,omitempty"`
	Username   string    `db:"username" json:"username,omitempty"`
	PhotoURL   string    `db:"photo_url" json:"photo_url,omitempty"`
	Balance    int64     `db:"balance" json:"balance"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Merchandise is a sellable item mapped to a reseller product
type Merchandise struct {
	ID               int64  `db:"id" json:"id"`
	Name             string `db:"name" json:"name"`
	Price            int64  `db:"price" json:"price"`
	ResellerID       string `db:"reseller_id" json:"reseller_id"`
	ResellerCategory string `db:"reseller_category" json:"reseller_category"`
	Enabled          bool   `db:"enabled" json:"enabled"`
}

// Transaction is one purchase of one merchandise line
type Transaction struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	MerchandiseID   int64     `db:"merchandise_id" json:"merchandise_id"`
	Quantity        int       `db:"quantity" json:"quantity"`
	Inputs          Inputs    `db:"inputs" json:"inputs"`
	Amount          int64     `db:"amount" json:"amount"`
	Timestamp       time.Time `db:"created_at" json:"timestamp"`
	ServerResponse  string    `db:"server_response" json:"server_response"`
	IsAccepted      bool      `db:"is_accepted" json:"is_accepted"`
	Status          Status    `db:"status" json:"status"`
	ExternalOrderID *string   `db:"external_order_id" json:"external_order_id,omitempty"`

	// Joined read-only columns
	ChatID           string `db:"chat_id" json:"-"`
	MerchandiseName  string `db:"merchandise_name" json:"merchandise_name"`
	ResellerID       string `db:"reseller_id" json:"-"`
	ResellerCategory string `db:"reseller_category" json:"-"`
}

// Status is the internal transaction state
type Status string

const (
	StatusPendingDelivery  Status = "pending-delivery"
	StatusOnTheWay         Status = "ontheway"
	StatusDelivered        Status = "delivered"
	StatusRefunded         Status = "refunded"
	StatusIncorrectDetails Status = "incorrect-details"
	StatusFailed           Status = "failed"
)

// IsRefunded reports whether the balance was already returned for this status
func (s Status) IsRefunded() bool {
	return s == StatusRefunded || s == StatusIncorrectDetails
}

// Refreshable reports whether the user may ask for a status refresh
func (s Status) Refreshable() bool {
	return s == StatusOnTheWay || s == StatusFailed
}

// AcceptedFlag returns the is_accepted value implied by s; failed keeps prev.
func (s Status) AcceptedFlag(prev bool) bool {
	switch s {
	case StatusDelivered, StatusOnTheWay:
		return true
	case StatusRefunded, StatusIncorrectDetails:
		return false
	default:
		return prev
	}
}

// InputField is one buyer-supplied key/value pair such as a game account id
type InputField struct {
	Key   string
	Value string
}

// Inputs keeps buyer fields in the order they were entered.
// Stored as a JSON array of single-pair objects: [{"user_id":"1"},{"server":"eu"}].
type Inputs []InputField

func (in Inputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range in {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (in *Inputs) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("inputs must be an array: %w", err)
	}

	out := make(Inputs, 0, len(raw))
	for _, item := range raw {
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()

		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return fmt.Errorf("input item must be an object")
		}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			var value interface{}
			if err := dec.Decode(&value); err != nil {
				return err
			}
			out = append(out, InputField{Key: keyTok.(string), Value: stringify(value)})
		}
	}

	*in = out
	return nil
}

// Value implements driver.Valuer
func (in Inputs) Value() (driver.Value, error) {
	if in == nil {
		return []byte("[]"), nil
	}
	return in.MarshalJSON()
}

// Scan implements sql.Scanner
func (in *Inputs) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*in = Inputs{}
		return nil
	case []byte:
		return in.UnmarshalJSON(v)
	case string:
		return in.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported inputs column type %T", src)
	}
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return strings.Trim(string(b), `"`)
	}
}
