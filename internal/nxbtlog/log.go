// Package nxbtlog provides the package-wide logrus configuration used by
// every long-lived component (Server, Orchestrator, Protocol).
package nxbtlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var root = logrus.New()

func init() {
	root.SetOutput(os.Stderr)
	root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	root.SetLevel(logrus.InfoLevel)
}

// SetLevel parses and applies a logrus level name (panic, fatal, error, warn,
// info, debug, trace) to the root logger.
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	root.SetLevel(lvl)
	return nil
}

// For returns a component-scoped entry. Every constructor in this module
// takes one of these rather than reaching for the package-level logger
// directly, so multi-controller logs stay attributable to the component and
// controller index that produced them.
func For(component string) *logrus.Entry {
	return root.WithField("component", component)
}
