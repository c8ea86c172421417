package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/common/log"
	"github.com/eureka-network/proof-experiments/core"
	"github.com/eureka-network/proof-experiments/httpapi"
	"github.com/eureka-network/proof-experiments/prover"
	"github.com/eureka-network/proof-experiments/prover/circuit"
	"github.com/eureka-network/proof-experiments/trace"
	"github.com/eureka-network/proof-experiments/verify"
)

func startCmd(c *cli.Context) error {
	conf, err := contextToConfig(c)
	if err != nil {
		return err
	}
	l := conf.Logger()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon, err := core.NewDaemon(ctx, conf)
	if err != nil {
		return fmt.Errorf("can't instantiate the daemon: %w", err)
	}
	defer daemon.Close(context.Background())

	srv := &http.Server{
		Addr:              conf.ListenAddress(),
		Handler:           httpapi.New(daemon, l),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		l.Infow("serving http api", "listen", conf.ListenAddress(), "backend", conf.BackendKind())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	l.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func checkCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("check expects exactly one envelope file")
	}
	buf, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("reading envelope: %w", err)
	}
	var env prover.Envelope
	if err := env.Unmarshal(buf); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}

	com := env.Commitment
	if c.IsSet(commitmentFlag.Name) {
		if com, err = commit.FromHex(c.String(commitmentFlag.Name)); err != nil {
			return fmt.Errorf("parsing commitment: %w", err)
		}
	}

	level := log.InfoLevel
	if c.Bool(verboseFlag.Name) {
		level = log.DebugLevel
	}
	l := log.New(os.Stderr, level, false)
	keyDir := path.Join(c.String(folderFlag.Name), core.DefaultKeyFolder)
	v := verify.New(circuit.New(circuit.WithKeyDir(keyDir), circuit.WithLogger(l)))

	res := v.Verify(&env, com, env.PublicInputs)
	if !res.Accepted {
		return fmt.Errorf("proof rejected: %s: %s", res.Reason, res.Detail)
	}
	fmt.Fprintf(output, "proof accepted: backend %s, commitment %s\n", env.Backend, com)
	return nil
}

func submitCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("submit expects exactly one trace file")
	}
	buf, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}
	// Decode locally first so an obviously broken trace never leaves the
	// machine.
	var tr trace.ExecutionTrace
	if err := tr.Unmarshal(buf); err != nil {
		return fmt.Errorf("decoding trace: %w", err)
	}
	if err := tr.Validate(); err != nil {
		return err
	}

	url := c.String(connectFlag.Name) + "/submit"
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("submitting to %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon refused the trace: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	fmt.Fprintf(output, "%s\n", bytes.TrimSpace(body))
	return nil
}
