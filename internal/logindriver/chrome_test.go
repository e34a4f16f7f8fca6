package logindriver

import (
	"context"
	"errors"
	"testing"

	"github.com/velocimex/uptoken/internal/authflow"
)

func TestRedirectHostOf(t *testing.T) {
	tests := []struct {
		name    string
		authURL string
		want    string
		wantErr bool
	}{
		{
			name:    "host extracted from redirect_uri",
			authURL: "https://api.upstox.com/v2/login/authorization/dialog?client_id=x&redirect_uri=https%3A%2F%2Fcallback.example.com%2Fauth&response_type=code&state=s",
			want:    "callback.example.com",
		},
		{
			name:    "redirect_uri with port",
			authURL: "https://api.upstox.com/dialog?redirect_uri=http%3A%2F%2Flocalhost%3A8080%2Fcb",
			want:    "localhost:8080",
		},
		{
			name:    "missing redirect_uri",
			authURL: "https://api.upstox.com/dialog?client_id=x",
			wantErr: true,
		},
		{
			name:    "redirect_uri without host",
			authURL: "https://api.upstox.com/dialog?redirect_uri=%2Frelative%2Fpath",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := redirectHostOf(tt.authURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("redirectHostOf() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("redirectHostOf() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("redirectHostOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	expiredCtx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		err  error
		ctx  context.Context
		want authflow.DriverErrorKind
	}{
		{
			name: "deadline is a timeout",
			err:  context.DeadlineExceeded,
			ctx:  context.Background(),
			want: authflow.DriverTimeout,
		},
		{
			name: "missing node is element not found",
			err:  errors.New("could not find node for selector #otpNum"),
			ctx:  context.Background(),
			want: authflow.DriverElementNotFound,
		},
		{
			name: "anything else is unexpected",
			err:  errors.New("browser crashed"),
			ctx:  expiredCtx,
			want: authflow.DriverUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driverErr := classify("step", tt.err, tt.ctx)
			if driverErr.Kind != tt.want {
				t.Errorf("classify() kind = %v, want %v", driverErr.Kind, tt.want)
			}
			if !errors.Is(driverErr, tt.err) {
				t.Error("classify() does not wrap the original error")
			}
		})
	}
}
