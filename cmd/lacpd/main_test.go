package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hongkiaong/lacpd/pkg/config"
)

const testConfig = `
device: sw1
mac: 02:00:00:00:00:01
ports:
  - {name: Ethernet0}
  - {name: Ethernet4}
  - {name: Ethernet8}
lags:
  - {id: "1", mode: active, members: [Ethernet4, Ethernet8]}
vlans:
  - {id: 800, tagged: [lag1], untagged: [Ethernet0]}
users:
  - {name: admin, password: secret}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sw1.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", writeConfig(t, testConfig)})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := "sw1: 3 ports, 1 LAGs, 1 VLANs, 1 users: OK\n"
	if out.String() != want {
		t.Errorf("validate output = %q, want %q", out.String(), want)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	bad := strings.Replace(testConfig, "members: [Ethernet4, Ethernet8]", "members: [Ethernet4, Ethernet12]", 1)
	rootCmd.SetArgs([]string{"validate", writeConfig(t, bad)})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "Ethernet12") {
		t.Errorf("validate error = %v, want mention of Ethernet12", err)
	}
}

func TestBootAppliesStartupConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, testConfig))
	if err != nil {
		t.Fatal(err)
	}
	d, err := boot(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsReachable(800, "Ethernet0", 800, "lag1") {
		t.Error("Ethernet0 and lag1 should share VLAN 800")
	}
}
