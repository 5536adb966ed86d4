package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/models"
	"github.com/owie-project/owie-netd/internal/storage"
	"github.com/owie-project/owie-netd/internal/validation"
)

// Rejection reasons. Every rejected update leaves Settings untouched and
// schedules no restart.
var (
	ErrInvalidWiFi       = errors.New("invalid SSID or password")
	ErrInvalidSerial     = errors.New("invalid BMS serial number")
	ErrInvalidAPPassword = errors.New("invalid AP password")
)

// Runner executes fn on the goroutine that owns Settings.
type Runner interface {
	Do(ctx context.Context, fn func() error) error
}

// Restarter schedules a deferred device restart.
type Restarter interface {
	RestartSoon()
}

// WiFiForm is the station network submission. Capacities match
// models.APNameCapacity and models.APPasswordCapacity.
type WiFiForm struct {
	SSID     *string `form:"s" validate:"required,maxbytes=32"`
	Password *string `form:"p" validate:"required,maxbytes=64"`
}

// DeviceForm is the device settings submission. An empty serial clears the
// override; the self-AP password is empty (open network) or 8+ bytes.
type DeviceForm struct {
	BMSSerial      *string `form:"bs" validate:"required,uint_or_empty"`
	APSelfPassword *string `form:"pw" validate:"required,maxbytes=64,minlen_or_empty=8"`
}

// Service owns the in-memory Settings record. Reads and writes run on the
// Runner so they never interleave with scheduled work.
type Service struct {
	runner    Runner
	store     storage.SettingsStore
	restarter Restarter
	validator *validation.Validator

	current models.Settings
}

// NewService creates the configuration service.
func NewService(runner Runner, store storage.SettingsStore, restarter Restarter) *Service {
	return &Service{
		runner:    runner,
		store:     store,
		restarter: restarter,
		validator: validation.NewValidator(),
	}
}

// Load reads Settings from the store. It must run before the queue is
// pumped. A missing record yields zero Settings.
func (s *Service) Load(ctx context.Context) (models.Settings, error) {
	loaded, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Info().Msg("No stored settings, using defaults")
		s.current = models.Settings{}
	case err != nil:
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	default:
		s.current = *loaded
	}
	return s.current, nil
}

// Current returns the Settings without going through the Runner. It is only
// safe on the Runner's goroutine or before it starts.
func (s *Service) Current() models.Settings {
	return s.current
}

// Snapshot returns a copy of the current Settings.
func (s *Service) Snapshot(ctx context.Context) (models.Settings, error) {
	var out models.Settings
	err := s.runner.Do(ctx, func() error {
		out = s.current
		return nil
	})
	return out, err
}

// UpdateWiFi stores the station network credentials and restarts.
func (s *Service) UpdateWiFi(ctx context.Context, form WiFiForm) error {
	if err := s.validator.Validate(&form); err != nil {
		log.Warn().Err(err).Msg("Rejected WiFi settings")
		return fmt.Errorf("%w: %w", ErrInvalidWiFi, err)
	}

	return s.apply(ctx, func(next *models.Settings) {
		next.APName = models.BoundedCopy(*form.SSID, models.APNameCapacity)
		next.APPassword = models.BoundedCopy(*form.Password, models.APPasswordCapacity)
	}, true)
}

// UpdateDevice stores the BMS serial override and self-AP password and
// restarts.
func (s *Service) UpdateDevice(ctx context.Context, form DeviceForm) error {
	if err := s.validator.Validate(&form); err != nil {
		log.Warn().Err(err).Msg("Rejected device settings")
		var fe *validation.FieldError
		if errors.As(err, &fe) && fe.Field == "BMSSerial" {
			return fmt.Errorf("%w: %w", ErrInvalidSerial, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidAPPassword, err)
	}

	serial, err := ParseSerial(*form.BMSSerial)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSerial, err)
	}

	return s.apply(ctx, func(next *models.Settings) {
		next.BMSSerial = serial
		next.APSelfPassword = models.BoundedCopy(*form.APSelfPassword, models.APSelfPasswordCapacity)
	}, true)
}

// RecordGracefulShutdown bumps the informational shutdown counter and
// persists it without restarting.
func (s *Service) RecordGracefulShutdown(ctx context.Context) error {
	return s.apply(ctx, func(next *models.Settings) {
		next.GracefulShutdownCount++
	}, false)
}

// apply mutates a copy, persists it, then commits it in memory. The record
// is only replaced once the store accepted it.
func (s *Service) apply(ctx context.Context, mutate func(*models.Settings), restart bool) error {
	return s.runner.Do(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := s.current
		mutate(&next)
		if err := s.store.Save(ctx, &next); err != nil {
			log.Error().Err(err).Msg("Failed to save settings")
			return fmt.Errorf("save settings: %w", err)
		}
		s.current = next
		log.Info().
			Bool("station_mode", next.StationMode()).
			Uint32("bms_serial", next.BMSSerial).
			Bool("open_ap", next.APSelfPassword == "").
			Msg("Settings saved")
		if restart {
			s.restarter.RestartSoon()
		}
		return nil
	})
}

// ParseSerial maps an empty field to 0 ("no override").
func ParseSerial(v string) (uint32, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
