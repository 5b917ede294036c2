// Command samfsmount mounts a samfsd export as a local FUSE filesystem.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/samfsd/samfs/internal/fusebridge"
	"github.com/samfsd/samfs/internal/mountarg"
	"github.com/samfsd/samfs/internal/wire"
)

var (
	flagDebug      bool
	flagStrictExit bool
)

func main() {
	log := logrus.New()
	root := &cobra.Command{
		Use:   "samfsmount <source> <mountpoint>",
		Short: "Mount a samfsd export at mountpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(log, args[0], args[1])
		},
	}
	flags := root.Flags()
	flags.BoolVarP(&flagDebug, "debug", "d", false, "enable verbose FUSE debug logging")
	flags.BoolVar(&flagStrictExit, "strict-exit", false, "log a warning when the mount ends (the exit status is not changed)")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("samfsmount: fatal error")
	}
}

func run(log *logrus.Logger, source, mountpoint string) error {
	if flagDebug {
		log.SetLevel(logrus.DebugLevel)
	}
	if err := mountarg.ValidateMountPoint(mountpoint); err != nil {
		return err
	}
	src, err := mountarg.Parse(source)
	if err != nil {
		return err
	}

	addr := src.IP + ":" + strconv.Itoa(wire.DefaultPort)
	bridge := fusebridge.New(addr, src.URL, log.WithField("component", "fusebridge"))

	if flagDebug {
		fuse.Debug = func(msg interface{}) { log.Debugf("fuse: %v", msg) }
	}

	conn, err := fuse.Mount(
		mountpoint,
		fuse.FSName("samfs"),
		fuse.Subtype("samfsd"),
		fuse.LocalVolume(),
		fuse.VolumeName("samfs:"+src.IP+src.URL),
	)
	if err != nil {
		return fmt.Errorf("samfsmount: mount %s: %w", mountpoint, err)
	}
	defer conn.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info("samfsmount: signal received, unmounting")
		_ = fuse.Unmount(mountpoint)
	}()

	if err := fusefs.Serve(conn, bridge); err != nil {
		return fmt.Errorf("samfsmount: serve: %w", err)
	}

	<-conn.Ready
	if err := conn.MountError; err != nil {
		return fmt.Errorf("samfsmount: mount error: %w", err)
	}
	if flagStrictExit {
		log.Warn("samfsmount: mount ended; strict-exit enabled, verifying clean unmount")
	}
	return nil
}
