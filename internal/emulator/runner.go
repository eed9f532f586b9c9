// Package emulator is the shared start-up plumbing of the family
// binaries: CLI handling, transport setup (serial or TCP), state store
// and replay wiring, the optional HTTP control endpoint, and shutdown.
package emulator

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/metwx/metemu/internal/control"
	"github.com/metwx/metemu/internal/log"
	"github.com/metwx/metemu/internal/replay"
	"github.com/metwx/metemu/internal/session"
	"github.com/metwx/metemu/pkg/config"
	"github.com/metwx/metemu/pkg/serialport"
	"github.com/metwx/metemu/pkg/state"
)

// Options is one family's wiring into the shared runner.
type Options struct {
	Family            string
	DefaultSerialPort string
	DefaultBaud       int

	// NewDevice builds the family device. Called once per process in
	// serial mode and once per accepted connection in TCP mode.
	NewDevice func(src *replay.Source, store state.Store) (session.Device, error)

	// Snapshot renders the control endpoint's device view; invoked under
	// the session mutex.
	Snapshot func(dev session.Device) interface{}

	// OnStart, when set, runs after the session is built and before its
	// loops start. Families with a one-shot boot transmission use it.
	OnStart func(sess *session.Session, dev session.Device)
}

// Configurable is implemented by family devices that take the fleet
// entry's overrides (address, interval, start mode).
type Configurable interface {
	Configure(cfg config.DeviceData)
}

// Run is the family main. Usage:
//
//	<binary> [flags] <data_file> [serial_port] [baud] [RS422|RS485|RS232]
//
// Missing positional arguments fall back to the family defaults or to the
// device entry selected from -config. The return value is the process
// exit code.
func Run(opts Options) int {
	var (
		cfgPath   = flag.String("config", "", "YAML fleet configuration file")
		devName   = flag.String("device", "", "Device name to select from the configuration file")
		listen    = flag.String("listen", "", "Serve the protocol on a TCP address instead of a serial port")
		ctlAddr   = flag.String("control", "", "HTTP control endpoint address (disabled when empty)")
		backend   = flag.String("state-backend", "", "Persistent state backend: file or sqlite")
		statePath = flag.String("state-path", "", "Persistent state path (stateless when empty)")
		debug     = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	dev := config.DeviceData{
		Family:       opts.Family,
		SerialDevice: opts.DefaultSerialPort,
		Baud:         opts.DefaultBaud,
		LinkMode:     serialport.ModeRS232,
	}
	if *cfgPath != "" {
		provider := config.NewYAMLProvider(*cfgPath)
		entry, err := provider.GetDevice(*devName)
		if err != nil {
			log.Errorf("loading device configuration: %v", err)
			return 1
		}
		if entry.Family != opts.Family {
			log.Errorf("device %q is family %q, this binary emulates %q",
				entry.Name, entry.Family, opts.Family)
			return 1
		}
		dev = *entry
	}

	args := flag.Args()
	if len(args) >= 1 {
		dev.DataFile = args[0]
	}
	if len(args) >= 2 {
		dev.SerialDevice = args[1]
	}
	if len(args) >= 3 {
		baud, err := strconv.Atoi(args[2])
		if err != nil || baud <= 0 {
			log.Errorf("bad baud rate %q", args[2])
			return 1
		}
		dev.Baud = baud
	}
	if len(args) >= 4 {
		dev.LinkMode = args[3]
	}
	if *listen != "" {
		dev.Listen = *listen
	}
	if *ctlAddr != "" {
		dev.Control = *ctlAddr
	}
	if *backend != "" {
		dev.StateBackend = *backend
	}
	if *statePath != "" {
		dev.StatePath = *statePath
	}

	if dev.DataFile == "" {
		fmt.Fprintf(os.Stderr,
			"usage: %s [flags] <data_file> [serial_port] [baud] [RS422|RS485|RS232]\n",
			os.Args[0])
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()
	go watchStdin(cancel)

	if dev.Listen != "" {
		return serveTCP(ctx, opts, dev)
	}
	return serveSerial(ctx, opts, dev)
}

// watchStdin ends the process on a 'q' keystroke or stdin EOF, matching
// the interactive habit of running an emulator in a foreground terminal.
func watchStdin(cancel context.CancelFunc) {
	r := bufio.NewReader(os.Stdin)
	for {
		b, err := r.ReadByte()
		if err != nil {
			log.Debug("stdin closed")
			cancel()
			return
		}
		if b == 'q' || b == 'Q' {
			log.Info("quit requested")
			cancel()
			return
		}
	}
}

func serveSerial(ctx context.Context, opts Options, dev config.DeviceData) int {
	port, err := serialport.Open(dev.SerialDevice, dev.Baud, dev.LinkMode)
	if err != nil {
		log.Errorf("opening serial port: %v", err)
		return 1
	}
	defer port.Close()

	log.Infof("%s emulator on %s at %d baud (%s)",
		opts.Family, dev.SerialDevice, dev.Baud, dev.LinkMode)

	if err := runSession(ctx, opts, dev, port); err != nil {
		log.Errorf("session: %v", err)
		return 1
	}
	return 0
}

// serveTCP accepts connections one at a time; each gets a fresh device
// and session so integration rigs can reconnect cleanly.
func serveTCP(ctx context.Context, opts Options, dev config.DeviceData) int {
	listener, err := net.Listen("tcp", dev.Listen)
	if err != nil {
		log.Errorf("listening on %s: %v", dev.Listen, err)
		return 1
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	log.Infof("%s emulator listening on %s", opts.Family, dev.Listen)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			log.Errorf("accepting connection: %v", err)
			continue
		}

		log.Infof("connection from %s", conn.RemoteAddr())
		if err := runSession(ctx, opts, dev, conn); err != nil {
			log.Errorf("session: %v", err)
		}
		conn.Close()
		log.Infof("connection from %s closed", conn.RemoteAddr())
	}
}

// runSession builds the replay source, state store, device and session
// for one transport and blocks until the session ends.
func runSession(ctx context.Context, opts Options, devCfg config.DeviceData, rw io.ReadWriter) error {
	src, err := replay.Open(devCfg.DataFile)
	if err != nil {
		return fmt.Errorf("opening replay source: %w", err)
	}
	defer src.Close()

	store, err := state.Open(devCfg.StateBackend, devCfg.StatePath)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	dev, err := opts.NewDevice(src, store)
	if err != nil {
		return fmt.Errorf("building device: %w", err)
	}
	if c, ok := dev.(Configurable); ok {
		c.Configure(devCfg)
	}

	sess := session.New(rw, dev)
	log.Infof("session %s started", sess.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if devCfg.Control != "" {
		ctl := control.NewController(ctx, &wg, devCfg.Control, sess, func() interface{} {
			return opts.Snapshot(dev)
		})
		if err := ctl.StartController(); err != nil {
			return fmt.Errorf("starting control endpoint: %w", err)
		}
	}

	if opts.OnStart != nil {
		opts.OnStart(sess, dev)
	}

	err = sess.Run(ctx)
	wg.Wait()
	log.Infof("session %s ended", sess.ID)
	return err
}
