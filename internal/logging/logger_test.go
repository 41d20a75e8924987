package logging_test

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/notifyhub/syften-relay/internal/logging"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     logging.Config
		enabled zapcore.Level
		wantErr bool
	}{
		{name: "production default", cfg: logging.DefaultConfig(), enabled: zapcore.InfoLevel},
		{name: "debug console", cfg: logging.Config{Level: "debug", Encoding: "console", DevMode: true}, enabled: zapcore.DebugLevel},
		{name: "warn", cfg: logging.Config{Level: "warn", Encoding: "json"}, enabled: zapcore.WarnLevel},
		{name: "bad level", cfg: logging.Config{Level: "loud"}, wantErr: true},
		{name: "bad encoding", cfg: logging.Config{Level: "info", Encoding: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := logging.New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !logger.Core().Enabled(tt.enabled) {
				t.Fatalf("expected %s to be enabled", tt.enabled)
			}
			if tt.enabled > zapcore.DebugLevel && logger.Core().Enabled(tt.enabled-1) {
				t.Fatalf("expected %s to be disabled", tt.enabled-1)
			}
		})
	}
}
