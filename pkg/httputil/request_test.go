package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Channel string `json:"channel"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid json", `{"channel": "news"}`, false},
		{"invalid json", `{invalid}`, true},
		{"unknown field", `{"channel": "news", "extra": 1}`, true},
		{"too large", `{"channel": "` + strings.Repeat("a", MaxBodyBytes) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			var out body
			err := DecodeJSON(httptest.NewRecorder(), req, &out)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeBase64(t *testing.T) {
	got, err := DecodeBase64("aGVsbG8=")
	if err != nil || string(got) != "hello" {
		t.Fatalf("DecodeBase64 = %q, %v", got, err)
	}
	if _, err := DecodeBase64("!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestQueryValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?channel=a&channel=&channel=b&pattern=x", nil)
	if got := QueryValues(req, "channel"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("QueryValues(channel) = %v", got)
	}
	if got := QueryValues(req, "sharded"); got != nil {
		t.Errorf("QueryValues(sharded) = %v, want nil", got)
	}
}
