package config

import (
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stellar/go-stellar-sdk/network"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(envconfig.MapLookuper(map[string]string{
		"STELLAR_NETWORK": "testnet",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if cfg.SubmitWaitTimeout != 20*time.Second {
		t.Fatalf("unexpected wait timeout: %s", cfg.SubmitWaitTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected empty DATABASE_URL, got %q", cfg.DatabaseURL)
	}
	if cfg.MigrationsURL != "file://migrations" {
		t.Fatalf("unexpected migrations url: %q", cfg.MigrationsURL)
	}
	if cfg.NetworkPassphrase() != network.TestNetworkPassphrase {
		t.Fatalf("unexpected passphrase: %q", cfg.NetworkPassphrase())
	}
	if cfg.DefaultHorizonURL() != "https://horizon-testnet.stellar.org" {
		t.Fatalf("unexpected horizon url: %q", cfg.DefaultHorizonURL())
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing network",
			env:     map[string]string{},
			wantErr: "STELLAR_NETWORK",
		},
		{
			name:    "unknown network",
			env:     map[string]string{"STELLAR_NETWORK": "futurenet"},
			wantErr: "STELLAR_NETWORK must be",
		},
		{
			name:    "fee cap below base fee",
			env:     map[string]string{"STELLAR_NETWORK": "mainnet", "BASE_FEE": "500", "MAX_FEE": "200"},
			wantErr: "MAX_FEE",
		},
		{
			name:    "short transaction timeout",
			env:     map[string]string{"STELLAR_NETWORK": "mainnet", "TX_TIMEOUT": "2s"},
			wantErr: "TX_TIMEOUT",
		},
		{
			name:    "zero attempts",
			env:     map[string]string{"STELLAR_NETWORK": "mainnet", "SUBMIT_MAX_ATTEMPTS": "0"},
			wantErr: "SUBMIT_MAX_ATTEMPTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(envconfig.MapLookuper(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestMainnetHorizonOverride(t *testing.T) {
	cfg, err := load(envconfig.MapLookuper(map[string]string{
		"STELLAR_NETWORK": "mainnet",
		"HORIZON_URL":     "http://localhost:8000",
		"API_KEYS":        "k1,k2",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetworkPassphrase() != network.PublicNetworkPassphrase {
		t.Fatalf("unexpected passphrase: %q", cfg.NetworkPassphrase())
	}
	if cfg.DefaultHorizonURL() != "http://localhost:8000" {
		t.Fatalf("unexpected horizon url: %q", cfg.DefaultHorizonURL())
	}
	if len(cfg.APIKeys) != 2 {
		t.Fatalf("unexpected api keys: %v", cfg.APIKeys)
	}
}
