package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"anvilzksync/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")
	if AppConfig.Network.ChainID != 260 {
		t.Fatalf("unexpected chain id: %d", AppConfig.Network.ChainID)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("fork")
	if AppConfig.Network.Port != 8012 {
		t.Fatalf("expected port 8012, got %d", AppConfig.Network.Port)
	}
	if AppConfig.Logging.Level != "debug" {
		t.Fatalf("expected logging override")
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("network:\n  chain_id: 9999\n  port: 1234\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")

	if AppConfig.Network.ChainID != 9999 {
		t.Fatalf("expected chain id 9999, got %d", AppConfig.Network.ChainID)
	}
	if AppConfig.Network.Port != 1234 {
		t.Fatalf("expected port 1234, got %d", AppConfig.Network.Port)
	}
}
