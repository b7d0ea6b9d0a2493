package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/jglrxavpok/carrot-handles/bridge"
	"github.com/jglrxavpok/carrot-handles/handle"
	"github.com/jglrxavpok/carrot-handles/metrics"
	"github.com/jglrxavpok/carrot-handles/scenario"
	"github.com/jglrxavpok/carrot-handles/scene"
)

func main() {
	var (
		scenarioFile = flag.String("scenario", "", "Path to scenario YAML file")
		verbose      = flag.Bool("v", false, "Verbose logging")
		list         = flag.Bool("list", false, "List bridge functions and exit")
		listen       = flag.String("listen", "", "Serve /metrics on this address (e.g. :9090)")
		interactive  = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *list {
		listSignatures()
		return
	}

	if *scenarioFile == "" && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: poolsim -scenario <file.yaml> [-v] [-listen :9090]")
		fmt.Fprintln(os.Stderr, "       poolsim -list")
		fmt.Fprintln(os.Stderr, "       poolsim [-scenario <file.yaml>] -i  (interactive mode)")
		os.Exit(1)
	}

	// The TUI owns the terminal, so interactive mode does not log.
	log := zap.NewNop()
	if !*interactive {
		var err error
		if log, err = newLogger(*verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	defer log.Sync() //nolint:errcheck
	setLoggers(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(ctx, *scenarioFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, log, *scenarioFile, *listen); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger returns a development logger for -v, else a production
// logger that only reports warnings and errors.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func setLoggers(log *zap.Logger) {
	handle.SetLogger(log.Named("handle"))
	scene.SetLogger(log.Named("scene"))
	bridge.SetLogger(log.Named("bridge"))
	scenario.SetLogger(log.Named("scenario"))
}

func listSignatures() {
	fmt.Println("Bridge functions (exported by every storage host module):")
	for _, sig := range bridge.Signatures() {
		fmt.Printf("  %s\n", sig)
		fmt.Printf("      core: %v -> %v\n", sig.CoreParams(), sig.CoreResults())
	}
}

// loadScenario loads path, or returns an empty scenario when path is empty.
func loadScenario(path string) (*scenario.Scenario, error) {
	if path == "" {
		return &scenario.Scenario{Name: "interactive"}, nil
	}
	return scenario.Load(path)
}

// registerMetrics builds a registry exporting the runner's scene.
func registerMetrics(r *scenario.Runner) (*prometheus.Registry, *metrics.TickRecorder) {
	s := r.Scene()
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(metrics.Options{Locker: s}, s.Sources()...))

	events := metrics.NewEventCounter(reg, metrics.Options{})
	s.Meshes().Subscribe(events)
	s.Instances().Subscribe(events)
	s.Lighting().Storage().Subscribe(events)

	return reg, metrics.NewTickRecorder(reg, metrics.Options{})
}

func run(ctx context.Context, log *zap.Logger, path, listen string) error {
	sc, err := loadScenario(path)
	if err != nil {
		return err
	}

	var ticks *metrics.TickRecorder
	r, err := scenario.NewRunner(ctx, sc, scenario.Options{
		OnTick: func(res scene.TickResult) {
			if ticks != nil {
				ticks.Observe(res)
			}
			printTick(res)
		},
	})
	if err != nil {
		return err
	}
	defer r.Close(context.Background())

	var (
		srv      *http.Server
		serveErr <-chan error
	)
	if listen != "" {
		var reg *prometheus.Registry
		reg, ticks = registerMetrics(r)
		if srv, serveErr, err = serveMetrics(log, listen, reg); err != nil {
			return err
		}
		defer shutdown(srv)
		fmt.Printf("Serving metrics on %s/metrics\n", srv.Addr)
	}

	fmt.Printf("Scenario: %s (%d steps)\n", sc.Name, len(sc.Steps))
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("step %d: %w", r.Position(), err)
	}
	printStats(r.Scene())

	if srv == nil {
		return nil
	}
	fmt.Println("Scenario finished; serving metrics until interrupted.")
	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		return err
	}
}

// serveMetrics binds addr before returning, so an address in use is
// reported to the caller. Later Serve failures arrive on the channel.
func serveMetrics(log *zap.Logger, addr string, reg *prometheus.Registry) (*http.Server, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
			errc <- fmt.Errorf("metrics server: %w", err)
		}
		close(errc)
	}()
	return srv, errc, nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx) //nolint:errcheck
}

func printTick(res scene.TickResult) {
	fmt.Printf("tick %-4d reclaimed instances=%d meshes=%d lights=%d active_lights=%d\n",
		res.Tick, res.Instances, res.Meshes, res.Lights, len(res.Frame.Active))
}

func printStats(s *scene.Scene) {
	s.Lock()
	st := s.Stats()
	s.Unlock()

	fmt.Printf("\n%-10s %6s %6s %8s %6s %9s %10s\n", "storage", "slots", "live", "pending", "free", "emplaced", "reclaimed")
	for _, row := range []handle.Stats{st.Meshes, st.Instances, st.Lights} {
		fmt.Printf("%-10s %6d %6d %8d %6d %9d %10d\n",
			row.Name, row.Slots, row.Live, row.Pending, row.Free, row.Emplaced, row.Reclaimed)
	}
	fmt.Printf("\nticks: %d, mesh frees: %d\n", st.Tick, st.MeshFrees)
}
