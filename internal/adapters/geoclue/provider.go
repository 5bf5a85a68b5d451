package geoclue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/ports"
)

const (
	geoService    = "org.freedesktop.GeoClue2"
	managerPath   = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerIface  = "org.freedesktop.GeoClue2.Manager"
	clientIface   = "org.freedesktop.GeoClue2.Client"
	locationIface = "org.freedesktop.GeoClue2.Location"
	propsIface    = "org.freedesktop.DBus.Properties"

	accessDenied = "org.freedesktop.DBus.Error.AccessDenied"
)

// Provider implements ports.LocationProvider with a GeoClue2 client on the
// system bus.
type Provider struct {
	desktopID string
	log       *slog.Logger

	mu     sync.Mutex
	bus    *dbus.Conn
	client dbus.ObjectPath
}

// New creates a Provider. desktopID must match a .desktop file carrying
// X-Geoclue-2-Client=true; one is written under ~/.local/share if missing.
func New(desktopID string) *Provider {
	return &Provider{
		desktopID: desktopID,
		log:       slog.Default().With("component", "geoclue"),
	}
}

// RequestPermission creates and starts the GeoClue client. A denial by the
// agent is reported as false without error.
func (p *Provider) RequestPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus != nil {
		return true, nil
	}

	if err := ensureDesktopFile(p.desktopID); err != nil {
		p.log.Warn("desktop file", "desktop_id", p.desktopID, "error", err)
	}

	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return false, fmt.Errorf("system bus: %w", err)
	}

	var clientPath dbus.ObjectPath
	call := bus.Object(geoService, managerPath).CallWithContext(ctx, managerIface+".CreateClient", 0)
	if err := call.Store(&clientPath); err != nil {
		bus.Close()
		if isAccessDenied(err) {
			return false, nil
		}
		return false, fmt.Errorf("create client: %w", err)
	}

	obj := bus.Object(geoService, clientPath)
	if err := setProp(ctx, obj, "DesktopId", p.desktopID); err != nil {
		bus.Close()
		return false, fmt.Errorf("set DesktopId: %w", err)
	}
	if err := setProp(ctx, obj, "RequestedAccuracyLevel", accuracyLevel(ports.AccuracyBestForNavigation)); err != nil {
		bus.Close()
		return false, fmt.Errorf("set accuracy: %w", err)
	}
	if call := obj.CallWithContext(ctx, clientIface+".Start", 0); call.Err != nil {
		bus.Close()
		if isAccessDenied(call.Err) {
			return false, nil
		}
		return false, fmt.Errorf("start client: %w", call.Err)
	}

	p.bus = bus
	p.client = clientPath
	p.log.Info("geoclue client started", "path", clientPath)
	return true, nil
}

// CurrentFix polls the client's Location property until a fix appears or
// ctx ends.
func (p *Provider) CurrentFix(ctx context.Context) (domain.Position, error) {
	bus, client, err := p.conn()
	if err != nil {
		return domain.Position{}, err
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if path, err := locationPath(ctx, bus, client); err == nil && path != "/" && path != "" {
			if pos, ok := readLocation(ctx, bus, path); ok {
				return pos, nil
			}
		}
		select {
		case <-ctx.Done():
			return domain.Position{}, fmt.Errorf("%w: %v", domain.ErrLocationUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (s *subscription) Cancel() { s.once.Do(s.cancel) }

// Watch applies the distance threshold and delivers every new GeoClue
// location to fn until the subscription is cancelled or ctx ends.
func (p *Provider) Watch(ctx context.Context, opts ports.WatchOptions, fn func(domain.Position)) (ports.Subscription, error) {
	bus, client, err := p.conn()
	if err != nil {
		return nil, err
	}

	obj := bus.Object(geoService, client)
	p.applyWatchOptions(opts, func(name string, val interface{}) error {
		return setProp(ctx, obj, name, val)
	})

	rule := fmt.Sprintf("type='signal',interface='%s',path='%s'", propsIface, client)
	if call := bus.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.AddMatch", 0, rule); call.Err != nil {
		return nil, fmt.Errorf("add match: %w", call.Err)
	}

	sigCh := make(chan *dbus.Signal, 10)
	bus.Signal(sigCh)

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer func() {
			bus.RemoveSignal(sigCh)
			_ = bus.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, rule).Err
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok || sig == nil {
					p.log.Warn("dbus signal channel closed")
					return
				}
				path, ok := locationFromSignal(sig, client)
				if !ok {
					continue
				}
				if pos, ok := readLocation(watchCtx, bus, path); ok {
					fn(pos)
				}
			}
		}
	}()

	return &subscription{cancel: cancel}, nil
}

// Close stops the GeoClue client and releases the bus connection.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return
	}
	_ = p.bus.Object(geoService, p.client).Call(clientIface+".Stop", 0).Err
	p.bus.Close()
	p.bus = nil
}

func (p *Provider) conn() (*dbus.Conn, dbus.ObjectPath, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return nil, "", fmt.Errorf("%w: geoclue client not started", domain.ErrLocationUnavailable)
	}
	return p.bus, p.client, nil
}

// applyWatchOptions pushes the filter to the client. GeoClue keeps streaming
// with its defaults when a property is rejected, so failures only warn.
func (p *Provider) applyWatchOptions(opts ports.WatchOptions, set func(name string, val interface{}) error) {
	props := []struct {
		name string
		val  interface{}
	}{
		{"DistanceThreshold", uint32(math.Ceil(opts.DistanceInterval))},
		{"RequestedAccuracyLevel", accuracyLevel(opts.Accuracy)},
	}
	for _, pr := range props {
		if err := set(pr.name, pr.val); err != nil {
			p.log.Warn("set client property", "property", pr.name, "error", err)
		}
	}
}

func setProp(ctx context.Context, obj dbus.BusObject, name string, val interface{}) error {
	return obj.CallWithContext(ctx, propsIface+".Set", 0, clientIface, name, dbus.MakeVariant(val)).Err
}

func locationPath(ctx context.Context, bus *dbus.Conn, client dbus.ObjectPath) (dbus.ObjectPath, error) {
	var v dbus.Variant
	call := bus.Object(geoService, client).CallWithContext(ctx, propsIface+".Get", 0, clientIface, "Location")
	if err := call.Store(&v); err != nil {
		return "", err
	}
	path, _ := v.Value().(dbus.ObjectPath)
	return path, nil
}

func readLocation(ctx context.Context, bus *dbus.Conn, path dbus.ObjectPath) (domain.Position, bool) {
	var props map[string]dbus.Variant
	call := bus.Object(geoService, path).CallWithContext(ctx, propsIface+".GetAll", 0, locationIface)
	if err := call.Store(&props); err != nil {
		return domain.Position{}, false
	}
	return positionFromProps(props, time.Now())
}

func isAccessDenied(err error) bool {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name == accessDenied
	}
	var pe *dbus.Error
	if errors.As(err, &pe) {
		return pe.Name == accessDenied
	}
	return false
}

// ensureDesktopFile writes a minimal desktop entry unless one exists.
func ensureDesktopFile(desktopID string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, ".local", "share", "applications")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(dir, desktopID+".desktop")
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	content := `[Desktop Entry]
Type=Application
Name=fieldpins
Comment=Geo-anchored field markers
Exec=fieldpins-api
Terminal=false
NoDisplay=true
Categories=Utility;
X-Geoclue-2-Client=true
X-Geoclue-2-Access-Fine=true
`
	return os.WriteFile(dest, []byte(content), 0o644)
}
