package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	build := GetBuild()

	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("METRICS CALCULATION SERVICE")
	b.PrintCenteredText("Batch metrics submission, scheduling and promotion")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Build", build, 15)
	b.PrintKeyValue("Service URL", serviceURL, 15)
	b.PrintKeyValue("Cluster pool", config.Cluster.PoolType, 15)
	b.PrintKeyValue("Warehouse", config.Storage.Backend, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("service_url", serviceURL).
		Str("cluster_pool_type", config.Cluster.PoolType).
		Str("warehouse_backend", config.Storage.Backend).
		Msg("Metrics Calculation Service started")

	printCapabilities(config, logger)
	fmt.Printf("\n")
}

// printCapabilities displays the resolved cluster/debug capabilities.
func printCapabilities(config *Config, logger arbor.ILogger) {
	fmt.Printf("Cluster:\n")
	fmt.Printf("  - pool type: %s (min=%d, max=%d, retries=%d)\n",
		config.Cluster.PoolType, config.Cluster.MinWorkers, config.Cluster.MaxWorkers, config.Cluster.TaskRetries)
	fmt.Printf("Warehouse backend: %s\n", config.Storage.Backend)

	if config.Debug.All || config.Debug.Cache || config.Debug.Cluster {
		fmt.Printf("Debug toggles: all=%v cache=%v cluster=%v cluster_no_shutdown=%v embedded_engine=%v\n",
			config.Debug.All, config.Debug.Cache, config.Debug.Cluster,
			config.Debug.ClusterNoShutdown, config.Debug.WithEmbeddedEngine)
	}

	logger.Info().
		Str("pool_type", config.Cluster.PoolType).
		Int("min_workers", config.Cluster.MinWorkers).
		Int("max_workers", config.Cluster.MaxWorkers).
		Bool("debug_cache", config.Debug.Cache).
		Bool("debug_cluster", config.Debug.Cluster).
		Msg("Resolved capabilities")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("METRICS CALCULATION SERVICE")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("Application shutting down")
}

// PrintColorizedMessage prints a message in the given color. It does not
// log; the logger argument is unused and callers log separately.
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it.
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("[ok] %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it.
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("[error] %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it.
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("[warn] %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it.
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("[info] %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
