package domcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SellersJSON is the decoded shape of a sellers.json document (IAB
// sellers.json 1.0). Only the fields the lookup engine needs are typed;
// each seller keeps its raw JSON for storage.
type SellersJSON struct {
	ContactEmail   string       `json:"contact_email,omitempty"`
	ContactAddress string       `json:"contact_address,omitempty"`
	Version        string       `json:"version,omitempty"`
	Identifiers    []Identifier `json:"identifiers,omitempty"`
	Sellers        []Seller     `json:"sellers"`
}

// Identifier is an entry of the top-level identifiers array.
type Identifier struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Seller is one element of the sellers array. SellerID is "" when the
// source record carries no usable seller_id; such records are skipped by
// the indexer, not rejected.
type Seller struct {
	SellerID   string
	Name       string
	Domain     string
	SellerType string

	// Raw is the seller object exactly as it appeared in the document.
	// This is what the lookup index stores as seller_data.
	Raw json.RawMessage
}

// UnmarshalJSON keeps the raw bytes and extracts the typed fields.
// seller_id appears in the wild as both a JSON string and a bare number;
// numbers are normalized to their literal decimal text so "491787" and
// 491787 index identically.
func (s *Seller) UnmarshalJSON(data []byte) error {
	var aux struct {
		SellerID   json.RawMessage `json:"seller_id"`
		Name       string          `json:"name"`
		Domain     string          `json:"domain"`
		SellerType string          `json:"seller_type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Name = aux.Name
	s.Domain = aux.Domain
	s.SellerType = aux.SellerType
	s.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	s.SellerID = flexID(aux.SellerID)
	return nil
}

// MarshalJSON round-trips the original document bytes.
func (s Seller) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	return json.Marshal(map[string]string{
		"seller_id":   s.SellerID,
		"name":        s.Name,
		"domain":      s.Domain,
		"seller_type": s.SellerType,
	})
}

// ParseSellersJSON decodes a sellers.json document. A decode failure means
// the document is invalid_format; an empty or missing sellers array is
// valid.
func ParseSellersJSON(content []byte) (*SellersJSON, error) {
	doc := &SellersJSON{}
	if err := json.Unmarshal(content, doc); err != nil {
		return nil, fmt.Errorf("domcache: parse sellers.json: %w", err)
	}
	return doc, nil
}

// ValidateSellersJSON is the Validator wired into NewSellersJSON.
func ValidateSellersJSON(content []byte) error {
	_, err := ParseSellersJSON(content)
	return err
}

// flexID extracts a seller id from its raw JSON value: quoted strings are
// unquoted and trimmed, bare numbers keep their literal text (avoiding
// float64 precision loss on long ids), anything else is "".
func flexID(raw json.RawMessage) string {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	// Accept bare integers only; objects/arrays/bools are not ids.
	for _, c := range v {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return string(v)
}
