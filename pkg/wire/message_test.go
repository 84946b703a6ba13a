package wire

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	raw := []byte(`{"request":"RegisterUser","id":1,"args":{"name":"u"}}`)

	req, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if req.Request != "RegisterUser" {
		t.Errorf("Request = %q, want RegisterUser", req.Request)
	}
	if req.ID != 1 {
		t.Errorf("ID = %d, want 1", req.ID)
	}

	var args struct {
		Name string `json:"name"`
	}
	if err := req.Decode(&args); err != nil {
		t.Fatalf("Decode args failed: %v", err)
	}
	if args.Name != "u" {
		t.Errorf("Name = %q, want u", args.Name)
	}
}

func TestDecodeRequest_RejectsResponseFrame(t *testing.T) {
	raw := []byte(`{"response":"RegisterUser","id":1,"result":true}`)
	if _, err := DecodeRequest(raw); err == nil {
		t.Error("expected error decoding a response frame as a request")
	}
}

func TestDecodeRequest_MalformedJSON(t *testing.T) {
	if _, err := DecodeRequest([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestRecoverID(t *testing.T) {
	raw := []byte(`{"request":"NewScene","id":42,"args":{"bad`)
	name, id, ok := RecoverID(raw)
	if ok {
		t.Fatalf("RecoverID should fail on truncated JSON, got name=%q id=%d", name, id)
	}

	raw = []byte(`{"request":"NewScene","id":42}`)
	name, id, ok = RecoverID(raw)
	if !ok || name != "NewScene" || id != 42 {
		t.Errorf("RecoverID = (%q, %d, %v), want (NewScene, 42, true)", name, id, ok)
	}
}

func TestOK(t *testing.T) {
	resp, err := OK("SaveScene", 7, map[string]string{"status": "saved"})
	if err != nil {
		t.Fatalf("OK failed: %v", err)
	}
	if !resp.Result {
		t.Error("Result = false, want true")
	}
	if resp.ID != 7 || resp.Response != "SaveScene" {
		t.Errorf("unexpected envelope: %+v", resp)
	}

	var data map[string]string
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["status"] != "saved" {
		t.Errorf("data[status] = %q, want saved", data["status"])
	}
}

func TestFailed(t *testing.T) {
	resp := Failed("UpdateObjectPose", 3, []string{"Object is not write locked o1"})
	if resp.Result {
		t.Error("Result = true, want false")
	}
	if len(resp.Messages) != 1 || resp.Messages[0] != "Object is not write locked o1" {
		t.Errorf("Messages = %v", resp.Messages)
	}
}

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("SceneSaved", struct{}{})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if evt.Event != "SceneSaved" {
		t.Errorf("Event = %q, want SceneSaved", evt.Event)
	}
}
