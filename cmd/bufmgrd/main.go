// Command bufmgrd is a small standalone harness around the buffer manager:
// it opens (or creates) a device file, allocates a demo tree through
// demotree, runs the page-provider fleet until interrupted, then flushes and
// exits. It exists to exercise the full lifecycle end to end outside of the
// test suite, not as a real server.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ryogrid/leanbufmgr"
	"github.com/ryogrid/leanbufmgr/config"
	"github.com/ryogrid/leanbufmgr/demotree"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.StandardLogger().Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:   "bufmgrd",
		Short: "Run the buffer manager's page-provider fleet against a device file",
	}

	config.BindFlags(root.Flags())
	cfgFile := root.PersistentFlags().String("config", "", "optional config file (yaml/json/toml)")
	if err := v.BindPFlags(root.Flags()); err != nil {
		logrus.StandardLogger().Fatalf("bind flags: %v", err)
	}
	v.SetEnvPrefix("BUFMGR")
	v.AutomaticEnv()

	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runDaemon(v, *cfgFile)
	}
	return root
}

func runDaemon(v *viper.Viper, cfgFile string) error {
	log := logrus.StandardLogger()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("bufmgrd: read config: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	mgr, err := bufmgr.New(cfg, log)
	if err != nil {
		return fmt.Errorf("bufmgrd: construct buffer manager: %w", err)
	}
	defer mgr.Device().Close()

	tree := demotree.New(mgr)
	log.Infof("bufmgrd: allocated demo tree root, partitions=%d pp_threads=%d", mgr.PartitionsCount(), cfg.PPThreads)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgr.StartPageProviders(ctx); err != nil {
		return fmt.Errorf("bufmgrd: start page providers: %w", err)
	}

	go seedChildren(tree, 64)

	<-ctx.Done()
	log.Info("bufmgrd: shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mgr.FlushAndStop(stopCtx); err != nil {
		return fmt.Errorf("bufmgrd: flush on shutdown: %w", err)
	}

	log.Infof("bufmgrd: stopped; restarts=%d hot_hits=%d cold_hits=%d misses=%d reads=%d writes=%d",
		mgr.Stats.Restarts(), mgr.Stats.HotHits(), mgr.Stats.ColdHits(), mgr.Stats.Misses(), mgr.Stats.Reads(), mgr.Stats.Writes())
	return nil
}

// seedChildren grows the demo tree so the page providers have real work:
// without it an idle process never exercises phase 1/2/3 at all.
func seedChildren(tree *demotree.Tree, n int) {
	rootFrame := tree.RootSwip().AsFrame()
	for i := 0; i < n; i++ {
		child, guard := tree.NewChild(rootFrame)
		child.MarkDirty()
		guard.Release()
	}
}
