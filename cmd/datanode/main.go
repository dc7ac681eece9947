package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"griddfs/pkg/common"
	"griddfs/pkg/datanode"
	"griddfs/pkg/namenode"

	"github.com/rs/zerolog/log"
)

func main() {
	cfgPath := flag.String("config", "", "yaml config file")
	id := flag.String("id", "", "node id")
	addr := flag.String("addr", "", "listen addr")
	advertise := flag.String("advertise", "", "address registered with the namenode")
	data := flag.String("data", "", "data dir")
	nn := flag.String("namenode", "", "namenode addr")
	flag.Parse()

	cfg := common.DefaultDataNodeConfig()
	if err := common.Load(*cfgPath, &cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.ID, *id)
	set(&cfg.Addr, *addr)
	set(&cfg.Advertise, *advertise)
	set(&cfg.DataDir, *data)
	set(&cfg.NameNode, *nn)
	if cfg.Advertise == "" {
		cfg.Advertise = cfg.Addr
	}
	common.SetupLogging(cfg.LogLevel, false)

	st, err := datanode.OpenStorage(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage")
	}
	defer st.Close()
	srv := datanode.NewServer(st,
		datanode.WithReadChunkSize(int(cfg.ReadChunkSize.Bytes())),
		datanode.WithCapacity(int64(cfg.Capacity.Bytes())))

	client, err := namenode.Dial(cfg.NameNode)
	if err != nil {
		log.Fatal().Err(err).Msg("namenode client")
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	agent := datanode.NewAgent(client, cfg.ID, cfg.Advertise, srv, datanode.WithHeartbeatInterval(cfg.HeartbeatInterval))
	go func() {
		if err := agent.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("agent stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		st.Close()
		os.Exit(0)
	}()
	if err := datanode.Serve(cfg.Addr, srv); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}
