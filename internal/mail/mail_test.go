package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"procuredata.io/internal/dataspace"
)

func TestResendClientSend(t *testing.T) {
	var got resendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_test" {
			t.Errorf("missing bearer key, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	c := NewResendClient(srv.URL+"/", "re_test", "ProcureData <no-reply@procuredata.io>", srv.Client())
	err := c.Send(context.Background(), Message{To: "ana@x.io", Subject: "Hola", HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.To) != 1 || got.To[0] != "ana@x.io" || got.From == "" || got.HTML != "<p>hi</p>" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestResendClientMapsProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"message":"invalid from address"}`))
	}))
	defer srv.Close()

	c := NewResendClient(srv.URL, "re_test", "bad", srv.Client())
	err := c.Send(context.Background(), Message{To: "ana@x.io"})
	if !errors.Is(err, dataspace.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if want := "mail provider returned 422: invalid from address"; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected %q in %q", want, err.Error())
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	c := NewResendClient("http://unused", "k", "f", nil)
	if err := c.Send(context.Background(), Message{}); err == nil {
		t.Fatal("expected error without recipient")
	}
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewLogSender(zap.New(core))
	if err := s.Send(context.Background(), Message{To: "ana@x.io", Subject: "Hola"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if logs.FilterField(zap.String("to", "ana@x.io")).Len() != 1 {
		t.Fatal("expected one log entry for the message")
	}
}
