package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ricochet-gg/ricochet/internal/core/anticheat"
	"github.com/ricochet-gg/ricochet/internal/core/ballistics"
	"github.com/ricochet-gg/ricochet/internal/core/engine"
	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
	"github.com/ricochet-gg/ricochet/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	logger := log.New(cfg.LogLevel)

	dispatcher := anticheat.NewDispatcher(anticheat.LogSink{Logger: logger}, cfg.ThreatQueueSize, logger)
	defer dispatcher.Close()

	engineCfg := engine.DefaultConfig()
	eng := engine.New(engineCfg, ballistics.EmptyWorld{}, defaultArmory(), defaultMaterials(), logger, dispatcher)

	srv := server.NewServer(cfg, engineCfg, eng, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-stopCh
		cancel()
	}()

	if err = srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error running server:", err)
		os.Exit(1)
	}
}

// defaultArmory is the built-in tuning table used until an external weapon
// service is wired.
func defaultArmory() ballistics.StaticArmory {
	return ballistics.StaticArmory{
		"rifle": {
			MaxRange:          300,
			BaseDamage:        ballistics.BodyDamage{Head: 100, Torso: 35, Limb: 20},
			PenetrationBudget: 2,
			DamageReduction:   0.25,
			MaxFireRate:       10,
			MinShotInterval:   0.09,
		},
		"smg": {
			MaxRange:          120,
			BaseDamage:        ballistics.BodyDamage{Head: 60, Torso: 24, Limb: 15},
			PenetrationBudget: 1,
			DamageReduction:   0.4,
			MaxFireRate:       15,
			MinShotInterval:   0.06,
		},
		"sniper": {
			MaxRange:          800,
			BaseDamage:        ballistics.BodyDamage{Head: 250, Torso: 110, Limb: 70},
			PenetrationBudget: 4,
			DamageReduction:   0.15,
			MaxFireRate:       1,
			MinShotInterval:   0.9,
		},
	}
}

func defaultMaterials() ballistics.StaticCosts {
	return ballistics.StaticCosts{
		"glass":    0.2,
		"wood":     0.5,
		"plaster":  0.7,
		"metal":    1.5,
		"concrete": 2.5,
	}
}
