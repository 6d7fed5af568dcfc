package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vramfs/vramfs/internal/device"
	"github.com/vramfs/vramfs/internal/index"
	"github.com/vramfs/vramfs/internal/vfs"
	"github.com/vramfs/vramfs/internal/vram"
)

func mountCommand() *cli.Command {
	return &cli.Command{
		Name:      "mount",
		Usage:     "Mount the filesystem on a directory",
		ArgsUsage: "[mountpoint]",
		Action: func(c *cli.Context) error {
			mountpoint := cfg.Mountpoint
			if c.Args().Present() {
				mountpoint = c.Args().First()
			}
			if mountpoint == "" {
				return fmt.Errorf("no mountpoint given")
			}

			banner := figure.NewFigure("vramfs", "", true)
			banner.Print()
			fmt.Println("")

			dev := device.New(rootLogger)
			defer dev.Close()

			pool := vram.NewPool(dev, rootLogger)
			if !pool.Probe() {
				return fmt.Errorf("no usable device: %w", device.ErrNoDevice)
			}
			defer pool.Close()

			grown := pool.Grow(int(cfg.Pool.InitialSize))
			if int64(grown) < cfg.Pool.InitialSize {
				rootLogger.Warn("pool grown short of requested size",
					zap.Int("grown_bytes", grown),
					zap.Int64("requested_bytes", cfg.Pool.InitialSize))
			}
			rootLogger.Info("pool ready",
				zap.Int("blocks", pool.Size()),
				zap.String("device", dev.Info().Name))

			idx, err := index.New()
			if err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
			defer idx.Close()

			go func() {
				rootLogger.Info("serving metrics",
					zap.String("address", cfg.Metrics.ListenAddress))
				http.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(cfg.Metrics.ListenAddress, nil); err != nil {
					rootLogger.Error("metrics server stopped", zap.Error(err))
				}
			}()

			fsys := vfs.New(idx, pool, rootLogger)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				rootLogger.Info("unmounting", zap.String("mountpoint", mountpoint))
				if err := vfs.Unmount(mountpoint); err != nil {
					rootLogger.Error("unmount failed", zap.Error(err))
				}
			}()

			return vfs.Mount(mountpoint, fsys)
		},
	}
}
