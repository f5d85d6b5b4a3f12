// Package datablob encodes and decodes the base64 JSON payload the membership
// agreement page reads from its "data" query parameter.
package datablob

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
)

// Param is the query parameter carrying the blob.
const Param = "data"

var ErrNoBlob = errors.New("data blob not found in URL")

type AddOn struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Membership is the payload the agreement page expects.
type Membership struct {
	PersonID            string `json:"person_id"`
	MemberEmail         string `json:"member_email"`
	MemberFirstName     string `json:"member_first_name"`
	MemberLastName      string `json:"member_last_name"`
	MemberPhoneNumber   string `json:"member_phone_number"`
	StudioID            string `json:"studio_id"`
	MBOStudioID         string `json:"mbo_studio_id"`
	MBOClientID         string `json:"mbo_client_id"`
	MBOContractID       string `json:"mbo_contract_id"`
	MBOClientContractID string `json:"mbo_client_contract_id"`
	MemberStreetAddress string `json:"member_street_address"`
	MemberCity          string `json:"member_city"`
	MemberState         string `json:"member_state"`
	MemberZip           string `json:"member_zip"`
	CreditCardLast4     string `json:"credit_card_last4"`
	CreditCardType      string `json:"credit_card_type"`
	ProductName         string `json:"product_name"`
	ProductType         string `json:"product_type"`
	ProductCategory     string `json:"product_category"`
	HasPromotion        bool   `json:"has_promotion"`
	AddOn               *AddOn `json:"add_on,omitempty"`
	CheckID             bool   `json:"check_id"`
	ContractStartDate   string `json:"contract_start_date"`
}

// Encode serializes v as JSON and returns it in standard base64.
func Encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode data blob: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode into out. Blobs that lost their padding or use the
// URL-safe alphabet are accepted too.
func Decode(blob string, out any) error {
	raw, err := decodeBase64(strings.TrimSpace(blob))
	if err != nil {
		return fmt.Errorf("decode data blob: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode data blob: %w", err)
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// FromURL decodes the blob in rawURL's data parameter into out.
func FromURL(rawURL string, out any) error {
	blob, err := Extract(rawURL)
	if err != nil {
		return err
	}
	return Decode(blob, out)
}

// Extract returns the undecoded data parameter of rawURL.
func Extract(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	blob := u.Query().Get(Param)
	if blob == "" {
		return "", ErrNoBlob
	}
	// An unescaped '+' in the query decodes to a space.
	return strings.ReplaceAll(blob, " ", "+"), nil
}

// WithBlob returns base with v encoded into its data parameter, keeping every
// other query parameter.
func WithBlob(base string, v any) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	blob, err := Encode(v)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(Param, blob)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns n characters drawn from [A-Za-z0-9].
func RandomString(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

func RandomEmail() string {
	return RandomString(6) + "@test.com"
}

// SampleMembership is a complete payload for the UAT studio with random
// member names, ready to be encoded.
func SampleMembership() Membership {
	return Membership{
		PersonID:            "custom-id-1234",
		MemberEmail:         RandomEmail(),
		MemberFirstName:     RandomString(5),
		MemberLastName:      RandomString(5),
		MemberPhoneNumber:   "1234567890",
		StudioID:            "bf60d4c9-f9c3-4e5c-97f2-fe1118531493",
		MBOStudioID:         "5729678",
		MBOClientID:         "98765",
		MBOContractID:       "1234",
		MBOClientContractID: "1234",
		MemberStreetAddress: "123 Main Street",
		MemberCity:          "Boston",
		MemberState:         "MA",
		MemberZip:           "02108",
		CreditCardLast4:     "1234",
		CreditCardType:      "DISCOVER",
		ProductName:         "Online Elite Family Membership",
		ProductType:         "Membership",
		ProductCategory:     "Elite",
		HasPromotion:        true,
		AddOn:               &AddOn{Type: "FAMILY", Value: "John Summit"},
		CheckID:             true,
		ContractStartDate:   "2025-05-30T00:00:00",
	}
}
