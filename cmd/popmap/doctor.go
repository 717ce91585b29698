package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"popmap/internal/config"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your popmap installation",
		Long: `Verifies that the configuration, country catalog, database and
handler registries are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("popmap doctor v%s\n\n", version)

			passed, failed, warned := 0, 0, 0
			pass := func(check, detail string) { printPass(check, detail); passed++ }
			fail := func(check, detail string) { printFail(check, detail); failed++ }
			warn := func(check, detail string) { printWarn(check, detail); warned++ }

			if _, err := os.Stat(cfgPath); err != nil {
				fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'popmap init' to create a default configuration.\n")
				return nil
			}
			pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			pass("Config validation", "valid")

			if cfg.Discord.Token == "" {
				fail("Discord token", "discord.token is empty and POPMAP_DISCORD_TOKEN is not set")
			} else {
				pass("Discord token", "set")
			}

			if cfg.General.OwnerID == "" || len(cfg.CommandGuildIDs()) == 0 {
				warn("Owner commands", "general.ownerID or discord.supportGuildID missing; promote is disabled")
			} else {
				pass("Owner commands", fmt.Sprintf("%d guild(s)", len(cfg.CommandGuildIDs())))
			}

			eng, err := newEngine(cfg, logger)
			if err != nil {
				fail("Engine", err.Error())
			} else {
				pass("Country catalog", fmt.Sprintf("%d countries", eng.catalog.Len()))
				pass("Database", cfg.Store.DBPath)
				pass("Handlers", fmt.Sprintf("%d commands, %d listeners", eng.commands.Len(), eng.listeners.Len()))
				eng.Close()
			}

			if cfg.General.LogFile != "" {
				if info, err := os.Stat(filepath.Dir(cfg.General.LogFile)); err != nil || !info.IsDir() {
					warn("Log file", fmt.Sprintf("directory will be created: %s", filepath.Dir(cfg.General.LogFile)))
				} else {
					pass("Log file", cfg.General.LogFile)
				}
			}

			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					fail("Metrics address", fmt.Sprintf("%s: %v", cfg.Metrics.Addr, err))
				} else {
					pass("Metrics address", cfg.Metrics.Addr+cfg.Metrics.Path)
				}
			}

			if cfg.Tracing.Enabled {
				pass("Tracing", fmt.Sprintf("%s (sample ratio %.2f)", cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio))
			}

			fmt.Printf("\n%d passed, %d failed, %d warnings\n", passed, failed, warned)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
