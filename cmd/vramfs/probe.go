package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vramfs/vramfs/internal/device"
	"github.com/vramfs/vramfs/internal/vram"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Check for a capable device and report its capabilities",
		Action: func(c *cli.Context) error {
			dev := device.New(rootLogger)
			defer dev.Close()

			pool := vram.NewPool(dev, rootLogger)
			if !pool.Probe() {
				return fmt.Errorf("no usable device: %w", device.ErrNoDevice)
			}
			defer pool.Close()

			info := dev.Info()
			fmt.Printf("Device:           %s\n", info.Name)
			fmt.Printf("Vendor:           %s\n", info.Vendor)
			fmt.Printf("Version:          %s\n", info.Version)
			fmt.Printf("Total memory:     %d MiB\n", info.TotalMemory>>20)
			fmt.Printf("Native fill:      %v\n", info.FillBuffer)
			fmt.Printf("Block size:       %d bytes\n", vram.BlockSize)

			rootLogger.Info("device probe succeeded", zap.String("device", info.Name))
			return nil
		},
	}
}
