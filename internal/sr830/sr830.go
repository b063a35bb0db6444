// Package sr830 implements the instrument link for the Stanford Research
// Systems SR830 lock-in amplifier over a byte-stream transport, typically the
// RS232 serial interface. It also provides a hardware-free simulator of the
// same contract for tests and dry runs.
package sr830

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Laogeodritt/lockin-sweep/internal/lockin"
)

const (
	// identityTag must appear in the *IDN? response of a genuine SR830.
	identityTag = ",SR830,"

	defaultResetDelay  = 2 * time.Second // the instrument is deaf while resetting
	defaultConfigDelay = time.Second     // settling time after reconfiguration

	// syncFilterCutoff is the frequency below which the synchronous filter,
	// differential input and DC coupling are engaged.
	syncFilterCutoff = 200.0
)

// ProtocolError reports that the connected device did not identify as an
// SR830. It is fatal for the whole run: no measurement is valid without a
// confirmed instrument.
type ProtocolError struct {
	Identity string
}

func (e *ProtocolError) Error() string {
	if e.Identity == "" {
		return "device returned no identity"
	}
	return fmt.Sprintf("device is not an SR830: %q", e.Identity)
}

// WithGPIB selects the GPIB output interface instead of RS232. The SR830
// cannot detect which interface commands arrive on, so the link must say.
func WithGPIB() func(*Conn) {
	return func(c *Conn) {
		c.gpib = true
	}
}

// WithConnLogger sets the logger for the connection.
func WithConnLogger(logger *slog.Logger) func(*Conn) {
	return func(c *Conn) {
		c.logger = logger.With(slog.String("component", "sr830"))
	}
}

// WithSettleDelays overrides the post-reset and post-configure settling
// pauses. Tests use zero delays.
func WithSettleDelays(reset, configure time.Duration) func(*Conn) {
	return func(c *Conn) {
		c.resetDelay = reset
		c.configDelay = configure
	}
}

// Conn is an SR830 link over a byte-stream transport. It implements
// lockin.Link. The engine owns the connection exclusively during a
// measurement, so Conn performs no locking of its own.
type Conn struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader

	gpib        bool
	resetDelay  time.Duration
	configDelay time.Duration

	logger *slog.Logger
}

// New wraps an open transport in an SR830 link with a discard logger.
func New(rwc io.ReadWriteCloser, options ...func(*Conn)) *Conn {
	c := Conn{
		rwc:         rwc,
		r:           bufio.NewReader(rwc),
		resetDelay:  defaultResetDelay,
		configDelay: defaultConfigDelay,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Identify selects the output interface, queries *IDN? and verifies the
// device is an SR830. It returns the raw identity string on success and a
// *ProtocolError on mismatch.
func (c *Conn) Identify(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	iface := 0
	if c.gpib {
		iface = 1
	}
	if err := c.send(cmdOutputInterface, iface); err != nil {
		return "", err
	}

	idn, err := c.query(cmdIdentify)
	if err != nil {
		return "", fmt.Errorf("querying identity: %w", err)
	}
	if !strings.Contains(idn, identityTag) {
		return "", &ProtocolError{Identity: idn}
	}
	return idn, nil
}

// Apply pushes the measurement settings to the instrument. With FullReset it
// first restores the standard settings and configures the fixed measurement
// setup (internal reference, R/theta displays, 20 mV sensitivity, high
// reserve); otherwise only the frequency-dependent subset is sent.
func (c *Conn) Apply(ctx context.Context, s lockin.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tcIndex, err := timeConstantIndex(s.TimeConstant)
	if err != nil {
		return fmt.Errorf("applying settings: %w", err)
	}
	slopeIndex, err := filterSlopeIndex(s.FilterSlope)
	if err != nil {
		return fmt.Errorf("applying settings: %w", err)
	}

	if s.FullReset {
		c.logger.Info("resetting instrument")
		if err := c.send(cmdReset); err != nil {
			return fmt.Errorf("resetting: %w", err)
		}
		// Drop the output drive right away; the reset default of 1 VRMS is
		// too hot for most devices under test.
		if err := c.send(cmdSineVoltage, s.SineVoltage); err != nil {
			return fmt.Errorf("setting sine voltage: %w", err)
		}
		time.Sleep(c.resetDelay)

		setup := []struct {
			format string
			args   []any
		}{
			{cmdRefSource, []any{1}},
			{cmdInputGround, []any{0}},
			{cmdLineFilter, []any{0}},
			{cmdChannelDisplay, []any{1, 1, 0}}, // CH1 displays R
			{cmdChannelDisplay, []any{2, 1, 0}}, // CH2 displays theta
			{cmdChannelOutput, []any{1, 0}},
			{cmdChannelOutput, []any{2, 0}},
			{cmdSensitivity, []any{sensitivity20mV}},
			{cmdReserve, []any{0}},
			{cmdStatusEnable, []any{0, 1}}, // latch input overload
			{cmdStatusEnable, []any{1, 1}}, // latch filter overload
			{cmdStatusEnable, []any{2, 1}}, // latch output overload
		}
		for _, cmd := range setup {
			if err := c.send(cmd.format, cmd.args...); err != nil {
				return fmt.Errorf("configuring instrument: %w", err)
			}
		}
	} else {
		if err := c.send(cmdSineVoltage, s.SineVoltage); err != nil {
			return fmt.Errorf("setting sine voltage: %w", err)
		}
	}

	lowFreq := s.Frequency < syncFilterCutoff
	source, coupling, sync := 0, 0, 0
	if lowFreq {
		source, coupling, sync = 1, 1, 1
	}

	c.logger.Info("configuring measurement point",
		slog.Float64("frequency", s.Frequency),
		slog.Int("harmonic", s.Harmonic),
		slog.Float64("phase", s.Phase),
		slog.Duration("timeConstant", s.TimeConstant),
		slog.Int("filterSlope", s.FilterSlope))

	point := []struct {
		format string
		args   []any
	}{
		{cmdFrequency, []any{s.Frequency}},
		{cmdHarmonic, []any{s.Harmonic}},
		{cmdPhase, []any{s.Phase}},
		{cmdInputSource, []any{source}},
		{cmdInputCoupling, []any{coupling}},
		{cmdSyncFilter, []any{sync}},
		{cmdTimeConstant, []any{tcIndex}},
		{cmdFilterSlope, []any{slopeIndex}},
	}
	for _, cmd := range point {
		if err := c.send(cmd.format, cmd.args...); err != nil {
			return fmt.Errorf("configuring measurement point: %w", err)
		}
	}

	time.Sleep(c.configDelay)
	return nil
}

// Read snapshots R and theta in one query, then reads the lock-in status
// byte for the overload flags. The snapshot keeps both channels coherent.
func (c *Conn) Read(ctx context.Context) (lockin.Reading, error) {
	if err := ctx.Err(); err != nil {
		return lockin.Reading{}, err
	}

	snap, err := c.query(cmdSnapshot)
	if err != nil {
		return lockin.Reading{}, fmt.Errorf("reading snapshot: %w", err)
	}

	parts := strings.Split(snap, ",")
	if len(parts) != 2 {
		return lockin.Reading{}, fmt.Errorf("malformed snapshot response %q", snap)
	}
	magnitude, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return lockin.Reading{}, fmt.Errorf("parsing magnitude %q: %w", parts[0], err)
	}
	phase, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return lockin.Reading{}, fmt.Errorf("parsing phase %q: %w", parts[1], err)
	}

	status, err := c.query(cmdStatus)
	if err != nil {
		return lockin.Reading{}, fmt.Errorf("reading status: %w", err)
	}
	bits, err := strconv.Atoi(strings.TrimSpace(status))
	if err != nil {
		return lockin.Reading{}, fmt.Errorf("parsing status %q: %w", status, err)
	}

	return lockin.Reading{
		Magnitude: magnitude,
		Phase:     phase,
		Overload:  bits&statusOverloadMask != 0,
	}, nil
}

// Shutdown closes the underlying transport.
func (c *Conn) Shutdown(ctx context.Context) error {
	c.logger.Info("closing instrument link")
	return c.rwc.Close()
}

// send writes one command. SR830 commands are carriage-return terminated.
func (c *Conn) send(format string, args ...any) error {
	cmd := fmt.Sprintf(format, args...)
	if _, err := io.WriteString(c.rwc, cmd+"\r"); err != nil {
		return fmt.Errorf("sending %q: %w", cmd, err)
	}
	return nil
}

// query writes one command and reads the single-line response.
func (c *Conn) query(format string, args ...any) (string, error) {
	if err := c.send(format, args...); err != nil {
		return "", err
	}

	line, err := c.r.ReadString('\r')
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return strings.TrimSpace(line), nil
}
