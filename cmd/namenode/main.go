package main

import (
	"flag"
	"strings"

	"griddfs/pkg/common"
	"griddfs/pkg/meta"
	"griddfs/pkg/namenode"

	"github.com/rs/zerolog/log"
)

func main() {
	cfgPath := flag.String("config", "", "yaml config file")
	addr := flag.String("addr", "", "listen addr")
	etcd := flag.String("etcd", "", "comma sep etcd endpoints; badger is used when empty")
	data := flag.String("data", "", "badger dir; in-memory when empty")
	flag.Parse()

	cfg := common.DefaultNameNodeConfig()
	if err := common.Load(*cfgPath, &cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *etcd != "" {
		cfg.Etcd = strings.Split(*etcd, ",")
	}
	if *data != "" {
		cfg.DataDir = *data
	}
	common.SetupLogging(cfg.LogLevel, false)

	var store meta.Store
	var err error
	if len(cfg.Etcd) > 0 {
		store, err = meta.NewEtcdStore(cfg.Etcd)
		log.Info().Strs("etcd", cfg.Etcd).Msg("metadata in etcd")
	} else {
		store, err = meta.OpenBadger(cfg.DataDir, log.Logger)
		log.Info().Str("dir", cfg.DataDir).Msg("metadata in badger")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("meta store")
	}
	defer store.Close()

	svc := namenode.NewService(store,
		namenode.WithServiceBlockSize(int64(cfg.BlockSize.Bytes())),
		namenode.WithReplicationFactor(cfg.ReplicationFactor),
		namenode.WithNodeTTL(cfg.NodeTTL))
	if err := svc.Serve(cfg.Addr); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}
