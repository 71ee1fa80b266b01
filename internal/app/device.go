// internal/app/device.go
package app

import (
	"fmt"

	"go.uber.org/zap"

	"siggen-service/internal/config"
	"siggen-service/internal/discovery"
	"siggen-service/internal/protocol"
	"siggen-service/internal/registry"
	"siggen-service/internal/service"
)

// Sink receives session notifications and simulated port writes
type Sink interface {
	service.Notifier
	protocol.WriteObserver
}

// Device is the wired control plane shared by the server and the CLI
type Device struct {
	Registry   *registry.Registry
	Encoder    *protocol.Encoder
	Enumerator *discovery.Enumerator
	Discoverer *discovery.Discoverer
	Session    *service.Session
}

// NewDevice builds the registry, encoder, discovery and session from cfg.
// opener is usually protocol.SerialOpener; tests pass fakes.
func NewDevice(cfg *config.Config, opener protocol.Opener, sink Sink, logger *zap.Logger) (*Device, error) {
	profile, err := protocol.LookupProfile(cfg.Protocol.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to select protocol profile: %w", err)
	}
	profile = profile.WithTerminator(cfg.Protocol.ResolveTerminator(profile.Terminator))

	var observer protocol.WriteObserver
	var notifier service.Notifier
	if sink != nil {
		observer = sink
		notifier = sink
	}

	reg := registry.New(opener, logger,
		registry.WithObserver(observer),
		registry.WithReadTimeout(cfg.Device.ReadTimeout),
	)

	// family_prefixes replaces the profile's identity prefixes when set
	prefixes := cfg.Device.FamilyPrefixes
	if len(prefixes) == 0 {
		prefixes = profile.IdentityPrefixes()
	}

	enumerator := discovery.NewEnumerator(logger)
	discoverer := discovery.NewDiscoverer(enumerator, opener, discovery.Config{
		DiscoveryBaudRate:    cfg.Device.DiscoveryBaudRate,
		DiscoveryReadTimeout: cfg.Device.DiscoveryReadTimeout,
		OperatingReadTimeout: cfg.Device.ReadTimeout,
		Turnaround:           cfg.Device.Turnaround,
		IdentityQuery:        cfg.Device.IdentityQuery,
		FamilyPrefixes:       prefixes,
		ResponseSize:         cfg.Device.ResponseSize,
	}, logger)

	encoder := protocol.NewEncoder(profile)
	session := service.NewSession(reg, encoder, discoverer, enumerator, notifier, service.Options{
		MaxConcurrent:   int64(cfg.Device.MaxConcurrentOperations),
		DefaultBaudRate: cfg.Device.BaudRate,
		StepSettle:      cfg.Protocol.StepSettle,
		Sequences:       service.BuildSequences(service.DefaultSequences(), cfg.Protocol.Sequences),
	}, logger)

	logger.Info("Device control plane initialized",
		zap.String("profile", profile.Name),
		zap.String("terminator", fmt.Sprintf("%q", profile.Terminator)),
		zap.Strings("identity_prefixes", prefixes),
		zap.Strings("sequences", session.Sequences()),
	)

	return &Device{
		Registry:   reg,
		Encoder:    encoder,
		Enumerator: enumerator,
		Discoverer: discoverer,
		Session:    session,
	}, nil
}
