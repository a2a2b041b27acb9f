package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/config"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/portal"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/proxy"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/stats"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/web"
)

var version string

func main() {
	cfg, configPath := parseFlagsAndConfig()
	runServers(cfg, configPath)
}

// parseFlagsAndConfig handles CLI flags, environment, logging, and config loading.
func parseFlagsAndConfig() (cfg *config.Config, configPath string) {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	versionShortFlag := flag.Bool("v", false, "Print version and exit (shorthand)")
	configPathPtr := flag.String("config", "config.json", "Path to configuration file (supports .json and .hcl formats)")
	envfile := flag.String("envfile", "", "Path to env file to load environment variables")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *versionFlag || *versionShortFlag {
		if version == "" {
			version = "dev"
		}
		fmt.Println("ronin-web-server version:", version)
		os.Exit(0)
	}

	if *envfile != "" {
		if err := loadEnvFile(*envfile); err != nil {
			logger.Fatal("Failed to load envfile: %v", err)
		}
		logger.Info("Loaded environment variables from %s", *envfile)
	}

	if *debugMode {
		logger.SetLevel(logger.DEBUG)
		logger.Debug("Debug logging enabled")
	}

	logger.Info("Starting ronin web server")
	logger.Debug("Using configuration file: %s", *configPathPtr)

	cfg, err := config.LoadConfig(*configPathPtr)
	if err != nil {
		logger.Warn("Could not load config file: %v. Using environment variables.", err)
		cfg, err = config.LoadConfig("")
		if err != nil {
			logger.Fatal("Failed to load configuration: %v", err)
		}
	}

	logger.SetLevel(logger.GetLevelFromString(cfg.LogLevel))
	if *debugMode {
		logger.SetLevel(logger.DEBUG)
	}

	logger.Debug("Configuration loaded successfully")
	logger.Debug("Server: %s (timeout %d seconds)", cfg.Server.ListenAddress, cfg.Server.TimeoutSeconds)
	if cfg.Proxy.Enabled {
		logger.Debug("Proxy: %s", cfg.Proxy.ListenAddress)
	}

	return cfg, *configPathPtr
}

// instance holds the running applications built from one configuration.
type instance struct {
	serverApp *web.App
	proxyApp  *web.App
	collector stats.Collector
}

// buildInstance assembles the server app, the optional proxy app and the
// statistics collector from the configuration.
func buildInstance(cfg *config.Config) (*instance, error) {
	collector, err := stats.NewCollectorFactory().CreateCollectorFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats collector: %w", err)
	}

	serverApp := web.NewApp()
	serverApp.SetCollector(collector)
	serverApp.SetTimeout(time.Duration(cfg.Server.TimeoutSeconds) * time.Second)

	if cfg.BasicAuth != nil {
		serverApp.BasicAuth(cfg.BasicAuth.Username, cfg.BasicAuth.Password, cfg.BasicAuth.Realm)
	}
	if len(cfg.Server.PermittedHosts) > 0 {
		serverApp.AuthorizeHosts(cfg.Server.PermittedHosts...)
	}
	if cfg.Portal.Enabled {
		portalApp := portal.NewApp(&cfg.Portal, collector, version)
		if err := serverApp.Mount(cfg.Portal.PathPrefix, portalApp); err != nil {
			return nil, fmt.Errorf("failed to mount portal: %w", err)
		}
	}
	if cfg.Server.PublicDir != "" {
		if err := serverApp.PublicDir(cfg.Server.PublicDir); err != nil {
			return nil, fmt.Errorf("failed to register public directory: %w", err)
		}
	}

	inst := &instance{
		serverApp: serverApp,
		collector: collector,
	}

	if cfg.Proxy.Enabled {
		poolOpts := []proxy.PoolOption{
			proxy.WithTimeout(time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second),
		}
		if cfg.Proxy.InsecureTLS {
			poolOpts = append(poolOpts, proxy.WithInsecureTLS())
		}
		if cfg.Proxy.Socks5Forward != "" {
			poolOpts = append(poolOpts, proxy.WithSocks5Forward(cfg.Proxy.Socks5Forward, cfg.Proxy.Socks5Username, cfg.Proxy.Socks5Password))
		}

		pool, err := proxy.NewConnPool(poolOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		reverseProxy := proxy.NewReverseProxy(pool)

		proxyApp := web.NewApp()
		proxyApp.SetCollector(collector)
		proxyApp.SetTimeout(time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second)
		proxyApp.Default(reverseProxy)
		proxyApp.SetErrorHandler(proxy.WriteErrorResponse)

		inst.proxyApp = proxyApp
	}

	return inst, nil
}

func (inst *instance) start(cfg *config.Config, errChan chan<- error) {
	go func() {
		if err := inst.serverApp.Run(cfg.Server.ListenAddress); err != nil {
			errChan <- err
		}
	}()
	if inst.proxyApp != nil {
		go func() {
			if err := inst.proxyApp.Run(cfg.Proxy.ListenAddress); err != nil {
				errChan <- err
			}
		}()
	}
}

func (inst *instance) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := inst.serverApp.Stop(ctx); err != nil {
		logger.Error("Error stopping server: %v", err)
	}
	if inst.proxyApp != nil {
		if err := inst.proxyApp.Stop(ctx); err != nil {
			logger.Error("Error stopping proxy: %v", err)
		}
	}
	if err := inst.collector.Close(); err != nil {
		logger.Error("Error closing stats collector: %v", err)
	}
}

// runServers starts and manages the servers, including signal handling
// and SIGHUP config reloads.
func runServers(cfg *config.Config, configPath string) {
	inst, err := buildInstance(cfg)
	if err != nil {
		logger.Fatal("Failed to build server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	errChan := make(chan error, 2)
	inst.start(cfg, errChan)
	currentCfg := cfg

	for {
		select {
		case err := <-errChan:
			logger.Fatal("Server error: %v", err)
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("Received SIGHUP: reloading configuration...")
				newCfg, err := config.LoadConfig(configPath)
				if err != nil {
					logger.Error("Failed to reload config: %v (keeping current config)", err)
					continue
				}
				if !config.HasChanged(currentCfg, newCfg) {
					logger.Info("Config unchanged after reload; not restarting.")
					continue
				}
				logger.Info("Config changed. Restarting servers...")
				inst.stop()
				newInst, err := buildInstance(newCfg)
				if err != nil {
					logger.Fatal("Failed to rebuild server after reload: %v", err)
				}
				inst = newInst
				inst.start(newCfg, errChan)
				currentCfg = newCfg
				logger.Info("Servers restarted with new configuration.")
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Info("Received signal %v, shutting down...", sig)
				inst.stop()
				logger.Info("Shutdown complete")
				return
			}
		}
	}
}

// loadEnvFile reads a .env-style file and sets environment variables
func loadEnvFile(path string) error {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("invalid file path: %w", err)
		}
		cleanPath = absPath
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Error("Error closing env file: %v", closeErr)
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if setErr := os.Setenv(key, val); setErr != nil {
			logger.Error("Error setting environment variable %s: %v", key, setErr)
		}
	}
	return scanner.Err()
}
