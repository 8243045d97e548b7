package netclass

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"assetflow/internal/config"
)

func writeUevent(t *testing.T, root, iface, content string) {
	t.Helper()
	dir := filepath.Join(root, "class", "net", iface)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "uevent"), []byte(content), 0o644); err != nil {
		t.Fatalf("write uevent: %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	if !FromConfig(config.Network{Metered: "always"}, nil).Metered() {
		t.Fatal("always should be metered")
	}
	if FromConfig(config.Network{Metered: "never"}, nil).Metered() {
		t.Fatal("never should not be metered")
	}
	if _, ok := FromConfig(config.Network{Metered: "auto", MeteredDevTypes: []string{"wwan"}}, nil).(*UdevClassifier); !ok {
		t.Fatal("auto should use the udev classifier")
	}
}

func TestSeedDetectsMeteredDevTypes(t *testing.T) {
	root := t.TempDir()
	writeUevent(t, root, "eth0", "INTERFACE=eth0\nIFINDEX=2\n")
	writeUevent(t, root, "wwan0", "DEVTYPE=wwan\nINTERFACE=wwan0\nIFINDEX=3\n")

	c := NewUdevClassifier(root, []string{"WWAN"}, nil)
	if c.Metered() {
		t.Fatal("unseeded classifier should not be metered")
	}
	if err := c.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if !c.Metered() {
		t.Fatal("expected wwan0 to mark the network metered")
	}
	if got := c.Interfaces(); len(got) != 1 || got[0] != "wwan0" {
		t.Fatalf("unexpected interfaces %v", got)
	}
}

func TestSeedMissingSysfsIsUnmetered(t *testing.T) {
	c := NewUdevClassifier(filepath.Join(t.TempDir(), "absent"), []string{"wwan"}, nil)
	if err := c.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if c.Metered() {
		t.Fatal("expected unmetered")
	}
}

func TestHandleEventTracksInterfaces(t *testing.T) {
	c := NewUdevClassifier(t.TempDir(), []string{"wwan"}, nil)

	c.handleEvent(netlink.UEvent{Action: netlink.ADD, KObj: "/devices/virtual/net/eth1", Env: map[string]string{"INTERFACE": "eth1"}})
	if c.Metered() {
		t.Fatal("ethernet should not be metered")
	}

	c.handleEvent(netlink.UEvent{Action: netlink.ADD, KObj: "/devices/usb/net/wwan0", Env: map[string]string{"INTERFACE": "wwan0", "DEVTYPE": "wwan"}})
	if !c.Metered() {
		t.Fatal("expected metered after wwan add")
	}

	c.handleEvent(netlink.UEvent{Action: netlink.REMOVE, KObj: "/devices/usb/net/wwan0", Env: map[string]string{}})
	if c.Metered() {
		t.Fatal("expected unmetered after wwan remove")
	}
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	c := NewUdevClassifier(t.TempDir(), nil, nil)
	c.Stop()
	var nilClassifier *UdevClassifier
	nilClassifier.Stop()
	if nilClassifier.Metered() {
		t.Fatal("nil classifier should not be metered")
	}
}
