package netclass

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"assetflow/internal/logging"
)

// DefaultSysRoot is where the kernel exposes sysfs.
const DefaultSysRoot = "/sys"

// UdevClassifier tracks interfaces whose DEVTYPE marks them as metered.
type UdevClassifier struct {
	sysRoot  string
	devtypes map[string]struct{}
	logger   *slog.Logger

	mu      sync.Mutex
	metered map[string]string
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewUdevClassifier builds a classifier over sysRoot. Interfaces are
// metered when their DEVTYPE is one of devtypes.
func NewUdevClassifier(sysRoot string, devtypes []string, logger *slog.Logger) *UdevClassifier {
	set := make(map[string]struct{}, len(devtypes))
	for _, dt := range devtypes {
		if dt = strings.ToLower(strings.TrimSpace(dt)); dt != "" {
			set[dt] = struct{}{}
		}
	}
	return &UdevClassifier{
		sysRoot:  sysRoot,
		devtypes: set,
		logger:   logging.NewComponentLogger(logger, "netclass"),
		metered:  make(map[string]string),
	}
}

// Metered reports whether any metered interface is present.
func (c *UdevClassifier) Metered() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.metered) > 0
}

// Interfaces returns the metered interfaces currently present.
func (c *UdevClassifier) Interfaces() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.metered))
	for name := range c.metered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Seed scans <sysRoot>/class/net/*/uevent and records metered interfaces.
func (c *UdevClassifier) Seed() error {
	dir := filepath.Join(c.sysRoot, "class", "net")
	ifaces, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	found := make(map[string]string)
	for _, iface := range ifaces {
		env, err := readUevent(filepath.Join(dir, iface.Name(), "uevent"))
		if err != nil {
			c.logger.Debug("uevent unreadable", logging.String("interface", iface.Name()), logging.Error(err))
			continue
		}
		devtype := strings.ToLower(env["DEVTYPE"])
		if _, ok := c.devtypes[devtype]; ok {
			found[iface.Name()] = devtype
		}
	}
	c.mu.Lock()
	c.metered = found
	c.mu.Unlock()
	return nil
}

func readUevent(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	env := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if ok {
			env[key] = value
		}
	}
	return env, scanner.Err()
}

// Start seeds the interface set and follows netlink events until ctx ends
// or Stop is called. A netlink failure leaves the seeded view in place.
func (c *UdevClassifier) Start(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.Seed(); err != nil {
		c.logger.Warn("network interface scan failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netclass_seed_failed"),
			logging.String(logging.FieldImpact, "network treated as unmetered until an interface event arrives"),
		)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		c.logger.Warn("failed to connect to netlink socket; metered detection will not follow interface changes",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "set network.metered to always or never to skip detection"),
		)
		return nil
	}
	c.conn = conn
	c.quit = make(chan struct{})
	c.running = true
	go c.monitorLoop(ctx, conn, c.quit)

	c.logger.Info("metered network detection started",
		logging.String(logging.FieldEventType, "netclass_started"),
		logging.Bool("metered", len(c.metered) > 0),
	)
	return nil
}

// Stop ends netlink monitoring.
func (c *UdevClassifier) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	close(c.quit)
	c.quit = nil
	_ = c.conn.Close()
	c.conn = nil
	c.running = false
}

func (c *UdevClassifier) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, netMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case event := <-queue:
			c.handleEvent(event)
		case err := <-errs:
			c.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldImpact, "metered detection may be stale"),
			)
		}
	}
}

func netMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "net"},
	})
	return rules
}

func (c *UdevClassifier) handleEvent(event netlink.UEvent) {
	iface := event.Env["INTERFACE"]
	if iface == "" {
		iface = filepath.Base(event.KObj)
	}
	if iface == "" || iface == "." {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch event.Action {
	case netlink.ADD:
		devtype := strings.ToLower(event.Env["DEVTYPE"])
		if _, ok := c.devtypes[devtype]; !ok {
			return
		}
		c.metered[iface] = devtype
		c.logger.Info("metered interface appeared",
			logging.String(logging.FieldEventType, "netclass_metered_added"),
			logging.String("interface", iface),
			logging.String("devtype", devtype),
		)
	case netlink.REMOVE:
		if _, ok := c.metered[iface]; !ok {
			return
		}
		delete(c.metered, iface)
		c.logger.Info("metered interface removed",
			logging.String(logging.FieldEventType, "netclass_metered_removed"),
			logging.String("interface", iface),
		)
	}
}
