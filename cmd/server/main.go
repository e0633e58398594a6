package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mintgate/internal/chain"
	"mintgate/internal/config"
	"mintgate/internal/history"
	"mintgate/internal/provider"
	"mintgate/internal/server"
	"mintgate/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store history.Store = history.NewMemoryStore()
	if cfg.Service.HistoryDSN != "" {
		pg, err := history.NewPostgresStore(ctx, cfg.Service.HistoryDSN)
		if err != nil {
			log.Fatalf("history store error: %v", err)
		}
		defer pg.Close()
		store = pg
	}

	deps := server.Deps{Store: store}

	var prov provider.Provider
	if cfg.Chain.PrivateKey != "" {
		rpcProv, err := provider.NewRPCProvider(ctx, cfg.Chain.WalletURL)
		if err != nil {
			log.Fatalf("wallet provider error: %v", err)
		}
		defer rpcProv.Close()
		go rpcProv.Watch(ctx, cfg.Service.PollInterval)
		prov = rpcProv

		backend, err := chain.Dial(ctx, chain.BackendConfig{
			RPCURL:        cfg.Chain.RPCURL,
			PrivateKeyHex: cfg.Chain.PrivateKey,
		})
		if err != nil {
			log.Fatalf("chain backend error: %v", err)
		}

		burnNFT, err := chain.NewNFTClient(backend, cfg.Deployment.Contracts.BurnMintNFT)
		if err != nil {
			log.Fatalf("burn-mint contract error: %v", err)
		}
		freeNFT, err := chain.NewNFTClient(backend, cfg.Deployment.Contracts.FreeMintNFT)
		if err != nil {
			log.Fatalf("free-mint contract error: %v", err)
		}
		hair, err := chain.NewTokenClient(backend, cfg.Deployment.Contracts.HairToken, "HAIR")
		if err != nil {
			log.Fatalf("hair token error: %v", err)
		}
		max, err := chain.NewTokenClient(backend, cfg.Deployment.Contracts.MaxToken, "MAX")
		if err != nil {
			log.Fatalf("max token error: %v", err)
		}

		deps.BurnNFT = burnNFT
		deps.FreeNFT = freeNFT
		deps.Hair = hair
		deps.Max = max

		sessions := session.NewManager(prov, cfg.Network)
		go sessions.Run(ctx)
		sessions.Probe(ctx)
		deps.Sessions = sessions

		apiServer := server.NewServer(cfg, deps)
		apiServer.SetRPCHealth(backend.Ping)
		run(ctx, apiServer)
		return
	}

	// No signing key: run against scripted fakes, useful for local UI work.
	log.Printf("CHAIN_PRIVATE_KEY unset; serving scripted fake chain")
	fakeProv := provider.NewFakeProvider()
	fakeProv.HandleAccounts("eth_accounts")
	fakeProv.HandleAccounts("eth_requestAccounts", "0x00000000000000000000000000000000deadbeef")
	fakeProv.HandleString("eth_chainId", cfg.Network.ChainIDHex)
	fakeProv.Handle("wallet_switchEthereumChain", func(any, []any) error { return nil })
	prov = fakeProv

	burnNFT := chain.NewFakeNFT(cfg.Deployment.Contracts.BurnMintNFT)
	deps.BurnNFT = burnNFT
	deps.FreeNFT = chain.NewFakeNFT(cfg.Deployment.Contracts.FreeMintNFT)
	deps.Hair = chain.NewFakeToken(0, 0)
	deps.Max = chain.NewFakeToken(0, 0)

	sessions := session.NewManager(prov, cfg.Network)
	go sessions.Run(ctx)
	sessions.Probe(ctx)
	deps.Sessions = sessions

	run(ctx, server.NewServer(cfg, deps))
}

func run(ctx context.Context, apiServer *server.Server) {
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
		os.Exit(1)
	}
}
