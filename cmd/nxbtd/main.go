// Command nxbtd emulates one Nintendo Switch Pro Controller or Joy-Con over
// Bluetooth, using the bluetransport/controllerprofile/protocol/inputparser
// packages wired up by an Orchestrator.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brikwerk/nxbt/internal/inputparser"
	"github.com/Brikwerk/nxbt/internal/nxbtlog"
	"github.com/Brikwerk/nxbt/internal/orchestrator"
	"github.com/Brikwerk/nxbt/internal/protocol"
)

func main() {
	daemonMode := flag.Bool("daemon", false, "log a daemon-mode notice at startup (log output is otherwise unchanged)")
	logLevel := flag.String("log-level", "info", "logrus level: panic, fatal, error, warn, info, debug, trace")
	kindFlag := flag.String("kind", "pro", "controller kind to emulate: pro, joycon-l, joycon-r")
	adapterFlag := flag.String("adapter", "", "hciN adapter id to bind (default: first free adapter)")
	reconnectFlag := flag.String("reconnect", "", "Switch MAC to reconnect to instead of pairing fresh")
	macroFlag := flag.String("macro", "", "macro text to run once the controller connects, then exit")
	flag.Parse()

	if err := nxbtlog.SetLevel(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "nxbtd: bad -log-level: %v\n", err)
		os.Exit(2)
	}
	log := nxbtlog.For("nxbtd")
	if *daemonMode {
		log.Info("starting in daemon mode")
	}

	kind, err := parseKind(*kindFlag)
	if err != nil {
		log.WithError(err).Fatal("bad -kind")
	}

	orch := orchestrator.New()
	index, err := orch.CreateController(orchestrator.CreateOptions{
		Kind:             kind,
		AdapterID:        *adapterFlag,
		ReconnectAddress: *reconnectFlag,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create controller")
	}
	log.WithField("index", index).Info("controller created, waiting for connection")

	if err := orch.WaitForConnection(index); err != nil {
		log.WithError(err).Fatal("controller failed to connect")
	}
	log.WithField("index", index).Info("controller connected")

	if *macroFlag != "" {
		if _, err := inputparser.ParseMacro(*macroFlag); err != nil {
			log.WithError(err).Fatal("invalid -macro text")
		}
		id, err := orch.Macro(index, *macroFlag, true)
		if err != nil {
			log.WithError(err).Fatal("macro failed")
		}
		log.WithField("macro_id", id).Info("macro finished")
		if err := orch.RemoveController(index); err != nil {
			log.WithError(err).Warn("failed to remove controller on exit")
		}
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutdown signal received, removing controller")
	if err := orch.RemoveController(index); err != nil {
		log.WithError(err).Warn("failed to remove controller cleanly")
	}
	log.Info("done")
}

func parseKind(s string) (protocol.Kind, error) {
	switch s {
	case "pro", "":
		return protocol.ProController, nil
	case "joycon-l":
		return protocol.JoyConL, nil
	case "joycon-r":
		return protocol.JoyConR, nil
	default:
		return 0, fmt.Errorf("unknown controller kind %q (want pro, joycon-l, or joycon-r)", s)
	}
}
