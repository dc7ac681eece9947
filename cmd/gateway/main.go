package main

import (
	"flag"
	"net/http"

	"griddfs/pkg/common"
	"griddfs/pkg/gateway"
	"griddfs/pkg/namenode"
	"griddfs/pkg/transfer"
	"griddfs/pkg/transport"
	"griddfs/signer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	cfgPath := flag.String("config", "", "yaml config file")
	addr := flag.String("addr", "", "listen addr")
	nn := flag.String("namenode", "", "namenode addr")
	flag.Parse()

	cfg := common.DefaultGatewayConfig()
	if err := common.Load(*cfgPath, &cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	cfg.Client.ApplyEnv()
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *nn != "" {
		cfg.Client.NameNode = *nn
	}
	common.SetupLogging(cfg.Client.LogLevel, false)

	client, err := namenode.Dial(cfg.Client.NameNode)
	if err != nil {
		log.Fatal().Err(err).Msg("namenode client")
	}
	defer client.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dialer := transport.NewDialer(
		transport.WithChunkSize(int(cfg.Client.ChunkSize.Bytes())),
		transport.WithCallTimeout(cfg.Client.CallTimeout))
	opts := []transfer.Option{
		transfer.WithBlockSize(int64(cfg.Client.BlockSize.Bytes())),
		transfer.WithWriteParallelism(cfg.Client.WriteParallelism),
		transfer.WithLogger(log.Logger),
		transfer.WithMetrics(transfer.NewMetrics(reg)),
	}
	if cfg.Client.CompensatingDeletes {
		opts = append(opts, transfer.WithCompensatingDeletes())
	}
	engine := transfer.New(client, dialer, opts...)

	gopt := gateway.Options{
		Transfers:  engine,
		Namespace:  client,
		Gatherer:   reg,
		MaxUpload:  int64(cfg.MaxUpload.Bytes()),
		PresignTTL: cfg.PresignTTL,
		BaseURL:    cfg.BaseURL,
	}
	if cfg.PresignSecret != "" {
		gopt.Signer = &signer.Signer{Secret: []byte(cfg.PresignSecret)}
	} else {
		log.Warn().Msg("presign_secret not set, presigned URLs disabled")
	}
	gw := gateway.New(gopt)

	log.Info().Str("addr", cfg.Addr).Str("namenode", cfg.Client.NameNode).Msg("gateway listening")
	if err := http.ListenAndServe(cfg.Addr, gw.Handler()); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}
