package canonicaljson

import (
	"encoding/json"
	"testing"
)

func TestCanonicalizeRaw_SortsMembers(t *testing.T) {
	got, err := CanonicalizeRaw([]byte(`{"reason":"budget","outcome":"lost","id":"opp-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"id":"opp-1","outcome":"lost","reason":"budget"}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalizeRaw_StripsWhitespaceAndNormalisesNumbers(t *testing.T) {
	input := []byte(`{
  "amount": 1200.50,
  "probability": 1e1,
  "tags": [ "b", "a" ]
}`)
	got, err := CanonicalizeRaw(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"amount":1200.5,"probability":10,"tags":["b","a"]}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCanonicalizeRaw_EmptyIsNull(t *testing.T) {
	got, err := CanonicalizeRaw(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "null" {
		t.Errorf("got %s, want null", got)
	}
}

func TestCanonicalize_StructAndRawAgree(t *testing.T) {
	type params struct {
		CustomerID string `json:"customerId"`
		Cascade    bool   `json:"cascade"`
	}
	fromStruct, err := Canonicalize(params{CustomerID: "c-1", Cascade: true})
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	fromRaw, err := Canonicalize(json.RawMessage(`{"cascade":true,"customerId":"c-1"}`))
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if string(fromStruct) != string(fromRaw) {
		t.Errorf("struct %s != raw %s", fromStruct, fromRaw)
	}
}

func TestCanonicalizeRaw_InvalidJSON(t *testing.T) {
	if _, err := CanonicalizeRaw([]byte(`{"a":`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}
