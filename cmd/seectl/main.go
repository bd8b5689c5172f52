// Command seectl is an informative example embedder (spec.md §6): it loads
// a JSON environment configuration, allocates an Environment against a
// chosen hypervisor driver, drives a single lifecycle verb, then
// deallocates. Signal handling and anything beyond this one-shot flow is
// left to real embedders, exactly as spec.md §6 describes example
// programs as "outside core."
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	seecontext "github.com/withsecure/see-go/pkg/context"
	"github.com/withsecure/see-go/pkg/environment"
	"github.com/withsecure/see-go/pkg/health"
	"github.com/withsecure/see-go/pkg/log"
	"github.com/withsecure/see-go/pkg/metrics"
	"github.com/withsecure/see-go/pkg/resources"
	"github.com/withsecure/see-go/pkg/types"
)

var (
	driver             string
	hooksConfigPath    string
	domainConfigPath   string
	networkConfigPath  string
	diskImage          string
	logLevel           string
	logJSON            bool
	verb               string
	shutdownTimeout    time.Duration
	metricsAddr        string
	readyExecCmd       []string
	readyExecTimeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "seectl",
	Short: "Allocate a sandboxed execution environment, drive one lifecycle verb, and tear it down",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&driver, "driver", resources.DriverQEMU, "hypervisor driver (qemu, lxc, vbox)")
	rootCmd.Flags().StringVar(&hooksConfigPath, "hooks-config", "", "path to a JSON or YAML hooks/environment configuration file")
	rootCmd.Flags().StringVar(&domainConfigPath, "domain-xml", "", "path to the driver's base domain XML template")
	rootCmd.Flags().StringVar(&networkConfigPath, "network-xml", "", "path to the driver's base network XML template")
	rootCmd.Flags().StringVar(&diskImage, "disk-image", "", "bare path to the disk image to boot")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&logJSON, "log-json", false, "output logs as JSON")
	rootCmd.Flags().StringVar(&verb, "verb", "poweron", "lifecycle verb to drive (poweron, resume, pause, poweroff, forced-poweroff, shutdown, restart)")
	rootCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "timeout for the shutdown verb")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve /metrics, /healthz, /readyz and /livez on this address for the lifetime of the verb")
	rootCmd.Flags().StringSliceVar(&readyExecCmd, "ready-exec-cmd", nil, "LXC driver only: command to exec inside the container after poweron to confirm the workload is ready")
	rootCmd.Flags().DurationVar(&readyExecTimeout, "ready-exec-timeout", 10*time.Second, "timeout for --ready-exec-cmd")
}

// waitForExecReady probes the LXC driver's container with a
// health.ExecChecker after poweron, since a running task does not by
// itself mean the workload inside it has finished booting.
func waitForExecReady(ctx context.Context, see *seecontext.Context, identifier string) error {
	if len(readyExecCmd) == 0 {
		return nil
	}
	execer, ok := see.Resources().(resources.Execer)
	if !ok {
		return fmt.Errorf("--ready-exec-cmd is only supported by the %s driver", resources.DriverLXC)
	}

	checker := health.NewExecChecker(readyExecCmd).WithContainer(identifier).WithTimeout(readyExecTimeout)
	checker.Execer = execer.Exec

	result := checker.Check(ctx)
	if !result.Healthy {
		return fmt.Errorf("readiness command failed: %s", result.Message)
	}
	log.WithEnvironmentID(identifier).Info().Str("message", result.Message).Msg("readiness command succeeded")
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())
	mux.HandleFunc("/livez", metrics.LivenessHandler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Logger.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
}

func run(cmd *cobra.Command, args []string) error {
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	if metricsAddr != "" {
		serveMetrics(metricsAddr)
	}

	envConfig := types.EnvironmentConfig{}
	if hooksConfigPath != "" {
		loaded, err := environment.LoadConfiguration(hooksConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load hooks configuration: %w", err)
		}
		envConfig = loaded
	}

	resourcesConfig := types.ResourcesConfig{
		Hypervisor: driver,
		Domain:     types.DomainConfig{ConfigurationPath: domainConfigPath},
		Disk:       types.DiskConfig{Image: diskImage},
	}
	if networkConfigPath != "" {
		resourcesConfig.Network = &types.NetworkConfig{ConfigurationPath: networkConfigPath}
	}

	var factory seecontext.Factory
	switch driver {
	case resources.DriverQEMU:
		factory = seecontext.QEMUFactory(resourcesConfig)
	case resources.DriverLXC:
		factory = seecontext.LXCFactory(resourcesConfig)
	case resources.DriverVBox:
		factory = seecontext.VBoxFactory(resourcesConfig)
	default:
		return fmt.Errorf("unknown driver %q", driver)
	}

	env := environment.New("", driver, factory, envConfig, environment.Config{})

	ctx := context.Background()
	metrics.RegisterComponent("events", true, "")
	if err := env.Allocate(ctx); err != nil {
		metrics.RegisterComponent("hypervisor", false, err.Error())
		metrics.RegisterComponent("resources", false, err.Error())
		return fmt.Errorf("failed to allocate environment: %w", err)
	}
	metrics.RegisterComponent("hypervisor", true, "")
	metrics.RegisterComponent("resources", true, "")
	defer func() {
		if err := env.Deallocate(ctx); err != nil {
			metrics.RegisterComponent("resources", false, err.Error())
			fmt.Fprintf(os.Stderr, "error deallocating environment: %v\n", err)
		}
	}()

	see, err := env.Context()
	if err != nil {
		return err
	}

	log.WithEnvironmentID(env.Identifier()).Info().Str("verb", verb).Msg("driving lifecycle verb")

	switch verb {
	case "poweron":
		err = see.PowerOn(ctx, nil)
	case "resume":
		err = see.Resume(ctx, nil)
	case "pause":
		err = see.Pause(ctx, nil)
	case "poweroff":
		err = see.PowerOff(ctx, nil)
	case "forced-poweroff":
		err = see.ForcedPowerOff(ctx, nil)
	case "shutdown":
		err = see.Shutdown(ctx, shutdownTimeout, nil)
	case "restart":
		err = see.Restart(ctx, nil)
	default:
		err = fmt.Errorf("unknown verb %q", verb)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", verb, err)
	}

	if verb == "poweron" {
		if err := waitForExecReady(ctx, see, env.Identifier()); err != nil {
			return err
		}
	}

	fmt.Printf("environment %s: %s succeeded\n", env.Identifier(), verb)
	return nil
}
