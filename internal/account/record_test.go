package account

import (
	"encoding/json"
	"testing"
)

func TestRecord_ExtraFieldsSurviveRoundTrip(t *testing.T) {
	input := `{
		"email": "a@x.com",
		"stsTokenManager": {"accessToken": "T1", "refreshToken": "R1", "expirationTime": 123},
		"healthStatus": "healthy",
		"apiKey": "K1",
		"displayName": "Alice",
		"providerData": [{"providerId": "password"}]
	}`

	var record Record
	if err := json.Unmarshal([]byte(input), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if record.Email != "a@x.com" || record.TokenState.RefreshToken != "R1" {
		t.Fatalf("core fields not parsed: %+v", record)
	}
	if record.APIKey != "K1" {
		t.Fatalf("apiKey not parsed: %q", record.APIKey)
	}
	if _, ok := record.Extra["displayName"]; !ok {
		t.Fatal("displayName not captured as extra field")
	}
	if _, known := record.Extra["email"]; known {
		t.Fatal("known field leaked into extras")
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if string(out["displayName"]) != `"Alice"` {
		t.Fatalf("displayName lost: %s", out["displayName"])
	}
	if string(out["email"]) != `"a@x.com"` {
		t.Fatalf("email lost: %s", out["email"])
	}
	if _, ok := out["providerData"]; !ok {
		t.Fatal("providerData lost")
	}
}

func TestRecord_NoExtras(t *testing.T) {
	record := Record{
		Email:      "a@x.com",
		TokenState: TokenState{AccessToken: "T1", RefreshToken: "R1", ExpirationTime: 1},
	}
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Email != record.Email || back.TokenState != record.TokenState {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if back.Extra != nil {
		t.Fatalf("unexpected extras: %v", back.Extra)
	}
}
