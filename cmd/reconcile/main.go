/*
main.go - One-shot reconciliation CLI

PURPOSE:
  Runs a single full reconciliation pass against a database and exits.
  Intended for cron jobs and incident response, where an operator wants
  the repair work without bringing up the HTTP server.

SEQUENCE:
  1. Pollution cleanup (reference placeholders, invalid adjustments,
     stray zero entries)
  2. Per-customer balance reconciliation
  3. Invoice remaining-balance batch repair
  4. Print the combined report as JSON to stdout

EXIT CODES:
  0  All customers and invoices processed without failures
  1  Startup or sweep-level error
  2  Sweep completed but some customers or invoices failed

EXAMPLES:
  ./reconcile -db="./data/ledger.db"
  ./reconcile -db="./data/ledger.db" -timeout=5m

SEE ALSO:
  - ledger/sweep.go: Sweep implementation
  - invoice/maintainer.go: Invoice batch repair
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironstore/ledger-engine/events"
	"github.com/ironstore/ledger-engine/invoice"
	"github.com/ironstore/ledger-engine/ledger"
	"github.com/ironstore/ledger-engine/store/sqlite"
)

type runReport struct {
	Sweep    ledger.ReconciliationReport `json:"sweep"`
	Invoices invoice.RepairReport        `json:"invoices"`
	Complete bool                        `json:"complete"`
}

func main() {
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	timeout := flag.Duration("timeout", 10*time.Minute, "abort the run after this long")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerStore := db.Ledger()
	calc := ledger.NewCalculator(ledgerStore)
	// No listeners in a one-shot run; balance updates are not published.
	sync := ledger.NewSynchronizer(ledgerStore, calc, events.Nop{}, logger)
	cleaner := ledger.NewCleaner(ledgerStore, logger)
	sweep := ledger.NewSweep(ledgerStore, cleaner, calc, sync, logger)
	maintainer := invoice.NewMaintainer(db.Invoices(), logger)

	sweepReport, err := sweep.ReconcileAll(ctx)
	if err != nil {
		logger.WithError(err).Fatal("reconciliation sweep failed")
	}

	repairReport, err := maintainer.RepairAll(ctx)
	if err != nil {
		logger.WithError(err).Fatal("invoice repair failed")
	}

	report := runReport{
		Sweep:    sweepReport,
		Invoices: repairReport,
		Complete: sweepReport.Complete() && len(repairReport.Failures) == 0,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.WithError(err).Fatal("failed to encode report")
	}

	if !report.Complete {
		os.Exit(2)
	}
}
