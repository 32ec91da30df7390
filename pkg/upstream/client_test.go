package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func detachServer(t *testing.T, status int, got *detachRequest) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != DetachPath {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "dispatch" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
	})
}

func TestHTTPDialer_Detach(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		username string
		wantErr  bool
	}{
		{"ok", http.StatusOK, "dispatch", false},
		{"unauthorized", http.StatusOK, "intruder", true},
		{"server error", http.StatusInternalServerError, "dispatch", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got detachRequest
			srv := httptest.NewServer(detachServer(t, tt.status, &got))
			defer srv.Close()

			client, err := HTTPDialer{Address: srv.URL}.Dial(context.Background(), tt.username, "secret")
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			defer client.Close()

			err = client.Detach(context.Background(), "key-123")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Detach() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var se *StatusError
				if !errors.As(err, &se) {
					t.Errorf("Detach() error = %T, want *StatusError", err)
				}
				return
			}
			if got.DetachKey != "key-123" {
				t.Errorf("detach_key = %q, want key-123", got.DetachKey)
			}
		})
	}
}

func TestHTTPDialer_UnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "up")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "admin.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	var got detachRequest
	srv := &http.Server{Handler: detachServer(t, http.StatusOK, &got)}
	go srv.Serve(ln)
	defer srv.Close()

	client, err := HTTPDialer{Address: "unix:" + path}.Dial(context.Background(), "dispatch", "secret")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	if err := client.Detach(context.Background(), "k"); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	if got.DetachKey != "k" {
		t.Errorf("detach_key = %q, want k", got.DetachKey)
	}
}

func TestHTTPDialer_NoAddress(t *testing.T) {
	if _, err := (HTTPDialer{}).Dial(context.Background(), "u", "p"); !errors.Is(err, ErrNoAddress) {
		t.Errorf("Dial() error = %v, want ErrNoAddress", err)
	}
}

func TestDecodePassword(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		want    string
		wantErr bool
	}{
		{name: "plain", encoded: "c2VjcmV0", want: "secret"},
		{name: "trailing newline", encoded: "c2VjcmV0\n", want: "secret"},
		{name: "wrapped", encoded: " c2Vj\r\ncmV0 ", want: "secret"},
		{name: "invalid", encoded: "%%%", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePassword(tt.encoded)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodePassword() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DecodePassword() = %q, want %q", got, tt.want)
			}
		})
	}
}
