// Command samfsd is the samfs export server: it listens on a TCP socket
// and serves one exported directory tree to samfsmount clients.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/samfsd/samfs/internal/server"
	"github.com/samfsd/samfs/internal/statsexport"
	"github.com/samfsd/samfs/internal/statsrecord"
	"github.com/samfsd/samfs/internal/transport"
	"github.com/samfsd/samfs/internal/wire"
)

var (
	flagCmethod    string
	flagStatus     bool
	flagSetCmethod string
	flagUnsafe     bool
	flagReadTimeo  time.Duration
	flagMetricAddr string
	flagHandleFD   int
)

func main() {
	log := logrus.New()
	root := &cobra.Command{
		Use:   "samfsd <ip> <path>",
		Short: "Export a local directory tree over the samfs wire protocol",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagSetCmethod != "" {
				return runSetCmethod(flagSetCmethod)
			}
			if flagStatus {
				return runStatus(os.Stdout)
			}
			if len(args) != 2 {
				return fmt.Errorf("samfsd: expected <ip> <path>, or -status, or -set-cmethod, or the internal -%s flag", server.HandleFDFlag)
			}
			if flagHandleFD != 0 {
				return runHandleFD(log, flagHandleFD, args[1])
			}
			return runServer(log, args[0], args[1])
		},
	}
	flags := root.Flags()
	flags.StringVar(&flagCmethod, "cmethod", "select", "concurrency discipline: select|pthread|fork")
	flags.BoolVar(&flagStatus, "status", false, "redraw the running server's statistics dashboard every second until interrupted")
	flags.StringVar(&flagSetCmethod, "set-cmethod", "", "change a running server's concurrency discipline (select|pthread|fork) and exit")
	flags.BoolVar(&flagUnsafe, "unsafe-paths", false, "disable export-root path canonicalization (original samfs behavior)")
	flags.DurationVar(&flagReadTimeo, "read-timeout", 0, "per-connection read deadline (0 disables)")
	flags.StringVar(&flagMetricAddr, "metrics-addr", ":9101", "address to serve Prometheus metrics on")
	flags.IntVar(&flagHandleFD, server.HandleFDFlag, 0, "internal: serve the connection inherited on this fd and exit")
	_ = flags.MarkHidden(server.HandleFDFlag)

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("samfsd: fatal error")
	}
}

// runSetCmethod attaches to the currently running samfsd's shared record
// and atomically swaps its active concurrency discipline; the dispatcher's
// accept loop picks this up on its next iteration (see Dispatcher.Serve).
func runSetCmethod(name string) error {
	method, ok := statsrecord.ParseMethod(name)
	if !ok {
		return fmt.Errorf("samfsd: unknown -set-cmethod %q", name)
	}
	rec, _, err := statsrecord.OpenViewer()
	if err != nil {
		return err
	}
	defer rec.Close()
	rec.SetConcMethod(method)
	return nil
}

// runStatus renders the dashboard once a second until interrupted, and
// concurrently serves the same Prometheus collector samfsd itself exposes
// — spec §4.4's "status viewer" is not a one-shot print, it is a second
// long-lived process attached to the running server's shared record.
func runStatus(w *os.File) error {
	rec, _, err := statsrecord.OpenViewer()
	if err != nil {
		return err
	}
	defer rec.Close()

	collector := statsexport.NewCollector(rec)
	prometheus.MustRegister(collector)
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(flagMetricAddr, nil); err != nil {
			logrus.WithError(err).Warn("status metrics server exited")
		}
	}()

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	return statsexport.Watch(w, rec, stop)
}

func runHandleFD(log *logrus.Logger, fd int, srcPath string) error {
	rec, _, err := statsrecord.OpenViewer()
	if err != nil {
		return fmt.Errorf("samfsd: handle-fd child could not attach to shared record: %w", err)
	}
	defer rec.Close()

	h := &server.Handlers{
		Resolver: server.Resolver{SrcPath: srcPath, Unsafe: flagUnsafe},
		Log:      log.WithField("role", "handle-fd"),
	}
	d, err := server.NewDispatcher(h, rec, rec.ConcMethod(), flagReadTimeo, log.WithField("role", "handle-fd"))
	if err != nil {
		return err
	}
	return d.ServeHandleFD(fd)
}

func runServer(log *logrus.Logger, ip, srcPath string) error {
	method, ok := statsrecord.ParseMethod(flagCmethod)
	if !ok {
		return fmt.Errorf("samfsd: unknown -cmethod %q", flagCmethod)
	}

	hostname, _ := os.Hostname()
	rec, pid, err := statsrecord.Open(hostname, ip, srcPath, method)
	if err != nil {
		return fmt.Errorf("samfsd: open stats record: %w", err)
	}
	defer rec.Close()
	log.WithFields(logrus.Fields{"pid": pid, "cmethod": flagCmethod}).Info("samfsd starting")

	collector := statsexport.NewCollector(rec)
	prometheus.MustRegister(collector)
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(flagMetricAddr, nil); err != nil {
			log.WithError(err).Warn("metrics server exited")
		}
	}()

	addr := ip + ":" + strconv.Itoa(wire.DefaultPort)
	ln, err := transport.Listen(addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	h := &server.Handlers{
		Resolver: server.Resolver{SrcPath: srcPath, Unsafe: flagUnsafe},
		Log:      log.WithField("component", "handlers"),
	}
	d, err := server.NewDispatcher(h, rec, method, flagReadTimeo, log.WithField("component", "dispatcher"))
	if err != nil {
		return err
	}
	return d.Serve(ln)
}
