package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/beamtop/beamtop/internal/config"
	"github.com/beamtop/beamtop/internal/dashboard"
	"github.com/beamtop/beamtop/internal/dist"
	"github.com/beamtop/beamtop/internal/errors"
	"github.com/beamtop/beamtop/internal/history"
	"github.com/beamtop/beamtop/internal/logger"
	"github.com/beamtop/beamtop/internal/sampler"
	"github.com/beamtop/beamtop/internal/ui"
)

const dialTimeout = 5 * time.Second

// monitorCommand connects to the node and runs the dashboard until quit.
func monitorCommand(ctx context.Context, cfg *config.Config) error {
	if debugFlag {
		os.Setenv("BEAMTOP_DEBUG", "1")
	}
	log := logger.Default()
	ui.ConfigureColorProfile()

	cookie, err := cfg.ResolveCookie()
	if err != nil {
		return err
	}
	if cookie == "" {
		cookie, err = promptCookie(cfg.Node)
		if err != nil {
			return err
		}
	}

	conn, err := connect(cfg, cookie, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	rpc := dist.NewRpcClient(conn)

	sysVersion, err := sampler.SystemVersion(ctx, rpc)
	if err != nil {
		return errors.Wrap(err, "First RPC against "+cfg.Node+" failed")
	}

	if cfg.MSAcc {
		if err := sampler.EnableMSAcc(ctx, rpc); err != nil {
			log.Warn("microstate accounting unavailable: %v", err)
			cfg.MSAcc = false
		}
	}

	opts := []sampler.Option{}
	if cfg.MSAcc {
		opts = append(opts, sampler.WithMSAcc())
	}
	var recorder *os.File
	if cfg.Record != "" {
		recorder, err = os.OpenFile(cfg.Record, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot open record file "+cfg.Record,
				"Check the path and directory permissions")
		}
		defer recorder.Close()
		opts = append(opts, sampler.WithRecorder(recorder))
	}

	store := history.NewStore(cfg.History)
	s := sampler.New(rpc, store, cfg.Interval, log, opts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples := make(chan *sampler.Sample, 4)
	go s.Run(runCtx, samples)

	model := dashboard.New(cfg.Node, sysVersion, store, samples, cfg.Interval)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return errors.Wrap(err, "Dashboard terminated unexpectedly")
	}

	cancel()
	if cause := conn.Err(); cause != nil {
		return errors.WrapWithCode(cause, errors.ErrTransport,
			"Connection to "+cfg.Node+" was lost",
			"Check that the node is still running")
	}
	return nil
}

// connect resolves the distribution port, dials it and completes the
// handshake.
func connect(cfg *config.Config, cookie string, log logger.Logger) (*dist.Connection, error) {
	port := uint16(cfg.Port)
	if port == 0 {
		var err error
		port, err = dist.LookupPort(cfg.NodeHost, cfg.NodeName, dialTimeout)
		if err != nil {
			return nil, err
		}
		log.Debug("epmd: %s resolves to port %d", cfg.Node, port)
	}

	addr := fmt.Sprintf("%s:%d", cfg.NodeHost, port)
	sock, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			"Cannot reach "+addr,
			"Check the host is reachable and the node is running")
	}

	hs := dist.NewHandshake(sock, cookie, cfg.NodeHost, log)
	result, err := hs.Run()
	if err != nil {
		sock.Close()
		return nil, err
	}
	log.Info("connected to %s as %s", result.PeerName, result.Name)

	conn := dist.NewConnection(sock, result, log)
	conn.Start()
	return conn, nil
}

// promptCookie asks for the cookie interactively. Outside a terminal there
// is nothing to ask, so it fails with guidance instead.
func promptCookie(node string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New(errors.ErrConfig,
			"No cookie found for "+node,
			"Pass --cookie, --cookie-file, or create ~/.erlang.cookie")
	}

	var cookie string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Erlang cookie for " + node).
				EchoMode(huh.EchoModePassword).
				Value(&cookie),
		),
	)
	if err := form.Run(); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cookie prompt aborted",
			"Pass --cookie to skip the prompt")
	}
	if cookie == "" {
		return "", errors.New(errors.ErrConfig,
			"Empty cookie",
			"The node will reject the handshake without the right cookie")
	}
	return cookie, nil
}
