package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpHandler "github.com/anthanhphan/go-kademlia-dht/internal/node/adapter/inbound/http"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/adapter/outbound/memstore"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/adapter/outbound/state"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/adapter/rpcudp"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/config"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/port"
	"github.com/anthanhphan/go-kademlia-dht/internal/node/service"
	"github.com/anthanhphan/go-kademlia-dht/pkg/gossip"
	"github.com/anthanhphan/go-kademlia-dht/pkg/routing"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/redis/go-redis/v9"
)

// Ensure GossipAdapter implements port.MembershipPort
var _ port.MembershipPort = (*gossip.GossipAdapter)(nil)

type App struct {
	cfg            *config.Config
	node           *service.NodeServiceImpl
	transport      *rpcudp.Transport
	server         *httpHandler.Server
	gossip         *gossip.GossipAdapter
	stateStore     port.StateStore
	seeds          []string
	backgroundStop context.CancelFunc
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. State store and saved snapshot
	stateStore, err := newStateStore(cfg.State)
	if err != nil {
		return nil, fmt.Errorf("failed to init state store: %w", err)
	}

	opts := service.Options{
		KSize:           cfg.DHT.KSize,
		Alpha:           cfg.DHT.Alpha,
		RefreshInterval: cfg.DHT.RefreshInterval(),
		RepublishAge:    cfg.DHT.RepublishAge(),
	}
	seeds := append([]string(nil), cfg.DHT.Bootstrap...)

	nodeID, saved, err := resolveIdentity(cfg.Server, stateStore)
	if err != nil {
		return nil, err
	}
	if saved != nil {
		if saved.KSize > 0 {
			opts.KSize = saved.KSize
		}
		if saved.Alpha > 0 {
			opts.Alpha = saved.Alpha
		}
		seeds = append(saved.Neighbors, seeds...)
	}

	// 4. Storage Engine
	storage, err := newStorage(cfg.DHT)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// 5. Transport and Node
	listenAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	transport, err := rpcudp.Listen(listenAddr, nodeID, rpcudp.Config{
		CallTimeout:    cfg.DHT.RPCTimeout(),
		HandlerWorkers: cfg.DHT.HandlerWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init transport: %w", err)
	}
	node := service.NewNodeService(nodeID, storage, transport, opts)

	a := &App{
		cfg:        cfg,
		node:       node,
		transport:  transport,
		stateStore: stateStore,
		seeds:      seeds,
	}

	// 6. Gossip (optional)
	if cfg.Gossip.Enabled {
		gossipAdapter, err := gossip.NewGossipAdapter(nodeID.String(), cfg.Server.Host, cfg.Gossip.Port, cfg.Server.Port)
		if err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("failed to init gossip: %w", err)
		}
		a.gossip = gossipAdapter
	}

	// 7. HTTP Server (optional)
	if cfg.HTTP.Enabled {
		a.server = httpHandler.NewServer(cfg.HTTP.Addr, node)
	}

	return a, nil
}

// resolveIdentity picks the node id: the saved one first, then the configured
// seed, then a random id.
func resolveIdentity(cfg config.ServerConfig, store port.StateStore) (routing.NodeID, *port.State, error) {
	if store != nil {
		saved, err := store.Load(context.Background())
		switch {
		case err == nil:
			logger.Infow("Loaded saved node state", "id", saved.ID.String(), "neighbors", len(saved.Neighbors))
			return saved.ID, &saved, nil
		case errors.Is(err, port.ErrNoState):
		default:
			logger.Warnw("Failed to load node state, starting fresh", "error", err.Error())
		}
	}

	if cfg.NodeID != "" {
		return routing.NewNodeID(cfg.NodeID), nil, nil
	}
	id, err := routing.RandomNodeID(rand.Reader)
	if err != nil {
		return routing.NodeID{}, nil, fmt.Errorf("failed to generate node id: %w", err)
	}
	return id, nil, nil
}

func newStateStore(cfg config.StateConfig) (port.StateStore, error) {
	switch cfg.Backend {
	case config.StateBackendFile:
		return state.NewFileStore(cfg.Path)
	case config.StateBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return state.NewRedisStore(client, cfg.Redis.Key), nil
	case config.StateBackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

func newStorage(cfg config.DHTConfig) (port.Storage, error) {
	storeCfg := memstore.Config{
		TTL:        cfg.TTL(),
		MaxEntries: cfg.MaxEntries,
	}
	switch cfg.StorageEngine {
	case config.StorageEngineTag:
		return memstore.NewTagStorage(storeCfg)
	case config.StorageEngineForgetful, "":
		return memstore.NewForgetfulStorage(storeCfg)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.StorageEngine)
	}
}

func (a *App) Run() error {
	// Start serving DHT RPCs before anyone learns about us.
	a.transport.Start(a.node)
	logger.Infow("DHT node starting",
		"id", a.node.Self().String(),
		"addr", a.transport.LocalAddr(),
		"ksize", a.cfg.DHT.KSize,
		"storage", a.cfg.DHT.StorageEngine)

	bgCtx, cancel := context.WithCancel(context.Background())
	a.backgroundStop = cancel

	// Start Gossip
	if a.gossip != nil {
		a.gossip.OnJoin(func(addr string) {
			if _, err := a.node.Bootstrap(bgCtx, []string{addr}); err != nil {
				logger.Warnw("Bootstrap from gossip member failed", "addr", addr, "error", err.Error())
			}
		})

		var joinErr error
		for i := 0; i < 5 && len(a.cfg.Gossip.Seeds) > 0; i++ {
			joinErr = a.gossip.Join(a.cfg.Gossip.Seeds)
			if joinErr == nil {
				break
			}
			logger.Warnw("Failed to join gossip cluster, retrying...", "attempt", i+1, "error", joinErr.Error())
			time.Sleep(2 * time.Second)
		}
		if joinErr != nil {
			logger.Errorw("Failed to join gossip cluster after retries", "error", joinErr.Error())
		}
		a.seeds = append(a.seeds, a.gossip.PeerAddrs()...)
	}

	// Bootstrap
	if len(a.seeds) > 0 {
		found, err := a.node.Bootstrap(bgCtx, a.seeds)
		if err != nil {
			logger.Warnw("Bootstrap failed", "error", err.Error())
		}
		logger.Infow("Initial bootstrap complete", "seeds", len(a.seeds), "found", len(found))
	}

	// Background workers
	go a.node.StartRefreshWorker(bgCtx, a.cfg.DHT.RefreshInterval())
	if a.stateStore != nil {
		go a.node.StartSnapshotWorker(bgCtx, a.stateStore, a.cfg.State.SaveInterval())
	}

	// Start HTTP
	serverErrCh := make(chan error, 1)
	if a.server != nil {
		logger.Infow("HTTP API starting", "addr", a.cfg.HTTP.Addr)
		go func() {
			if err := a.server.Start(); err != nil {
				serverErrCh <- err
			}
		}()
	}

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("http server failed: %w", err)
		logger.Errorw("HTTP server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down DHT node")
	a.backgroundStop()

	if a.stateStore != nil {
		if err := a.node.SaveState(context.Background(), a.stateStore); err != nil {
			logger.Warnw("Final state save failed", "error", err.Error())
		}
		if err := a.stateStore.Close(); err != nil {
			logger.Warnw("State store close failed", "error", err.Error())
		}
	}
	if a.gossip != nil {
		if err := a.gossip.Leave(); err != nil {
			logger.Warnw("Gossip leave failed", "error", err.Error())
		}
	}
	if a.server != nil {
		if err := a.server.Stop(context.Background()); err != nil {
			logger.Errorw("HTTP shutdown error", "error", err.Error())
			if runErr == nil {
				runErr = err
			}
		}
	}
	if err := a.transport.Close(); err != nil {
		logger.Warnw("Transport close failed", "error", err.Error())
	}

	return runErr
}
