package server

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/mvantor/ragol/internal/character"
	"github.com/mvantor/ragol/internal/core"
	"github.com/mvantor/ragol/internal/data"
	"github.com/mvantor/ragol/internal/dialect"
	"github.com/mvantor/ragol/internal/encryption"
	"github.com/mvantor/ragol/internal/ep3"
	"github.com/mvantor/ragol/internal/items"
	"github.com/mvantor/ragol/internal/proxy"
	"github.com/mvantor/ragol/internal/quest"
	"github.com/mvantor/ragol/internal/subcmd"
)

// Controller loads every startup asset and runs the listeners until the
// process context is canceled.
type Controller struct {
	Config *core.Config
}

// Start brings the whole server up. Any error here is fatal.
func (c *Controller) Start(ctx context.Context) error {
	logger, err := core.NewLogger(c.Config)
	if err != nil {
		return err
	}

	engine := c.Config.Database.Engine
	dataSource := c.Config.DatabaseURL()
	if engine == "" || engine == "sqlite" {
		engine = "sqlite"
		dataSource = c.Config.Database.Filename
		if dataSource == "" {
			dataSource = "ragol.db"
		}
	}
	db, err := data.Open(engine, dataSource, c.Config.Debugging.DatabaseLoggingEnabled)
	if err != nil {
		return err
	}
	defer func() {
		if err := data.Shutdown(db); err != nil {
			logger.Warnf("closing database: %v", err)
		}
	}()

	env := &subcmd.Env{Logger: logger}

	levelTablePath := filepath.Join(c.Config.SystemDir(), "levels.prs")
	if env.LevelTable, err = character.LoadLevelTable(levelTablePath); err != nil {
		return fmt.Errorf("loading level table: %w", err)
	}

	state := NewState(c.Config, logger, db, env)

	if c.Config.GameServer.V4Port != 0 {
		if state.KeyPool, err = encryption.LoadKeyPool(c.Config.KeyDir()); err != nil {
			return fmt.Errorf("loading key pool: %w", err)
		}
		logger.Infof("loaded %d private keys", len(state.KeyPool))
	}

	rarePath := filepath.Join(c.Config.SystemDir(), "rares.dat")
	if _, statErr := os.Stat(rarePath); statErr == nil {
		if state.Rares, err = items.LoadRareItemSet(rarePath); err != nil {
			return fmt.Errorf("loading rare item set: %w", err)
		}
	} else {
		logger.Info("no rare item set present; games will only produce common drops")
	}

	if _, statErr := os.Stat(c.Config.QuestDir()); statErr == nil {
		rng := rand.New(rand.NewSource(rand.Int63()))
		if state.Quests, err = quest.NewIndex(c.Config.QuestDir(), rng, logger); err != nil {
			return fmt.Errorf("loading quest index: %w", err)
		}
	}

	if _, statErr := os.Stat(c.Config.Ep3Dir()); statErr == nil {
		flags := ep3.BehaviorFlag(c.Config.Ep3.BehaviorFlags)
		if state.Ep3, err = ep3.LoadDataIndex(c.Config.Ep3Dir(), flags); err != nil {
			return fmt.Errorf("loading card battle data: %w", err)
		}
		env.Ep3 = state.Ep3
		logger.Infof("indexed %d cards and %d maps", len(state.Ep3.AllCardIDs()), len(state.Ep3.AllMapNumbers()))
	}

	group, groupCtx := errgroup.WithContext(ctx)

	ports := []struct {
		port int
		dia  dialect.Dialect
	}{
		{c.Config.GameServer.V1Port, dialect.V1},
		{c.Config.GameServer.V2Port, dialect.V2},
		{c.Config.GameServer.V3Port, dialect.V3},
		{c.Config.GameServer.V3ConsolePort, dialect.V3Console},
		{c.Config.GameServer.V4Port, dialect.V4},
	}
	started := 0
	for _, p := range ports {
		if p.port == 0 {
			continue
		}
		frontend := &Frontend{State: state, Dialect: p.dia, Port: p.port}
		group.Go(func() error { return frontend.StartListening(groupCtx) })
		started++
	}
	if started == 0 {
		return fmt.Errorf("no game server ports configured")
	}

	if c.Config.ProxyServer.Port != 0 {
		group.Go(func() error { return c.runProxy(groupCtx, state) })
	}

	return group.Wait()
}

// runProxy accepts clients for the transparent relay.
func (c *Controller) runProxy(ctx context.Context, state *State) error {
	d, err := dialect.Parse(c.Config.ProxyServer.Dialect)
	if err != nil {
		return fmt.Errorf("proxy dialect: %w", err)
	}
	remote := fmt.Sprintf("%s:%d", c.Config.ProxyServer.RemoteHost, c.Config.ProxyServer.RemotePort)
	addr := fmt.Sprintf("%s:%d", c.Config.Hostname, c.Config.ProxyServer.Port)

	listenConfig := &net.ListenConfig{}
	socket, err := listenConfig.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("proxy: listening on %s: %w", addr, err)
	}
	state.Logger.Infof("proxying %s connections on %s to %s", d, addr, remote)

	go func() {
		<-ctx.Done()
		_ = socket.Close()
	}()

	for {
		connection, err := socket.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			state.Logger.Warnf("proxy: failed to accept connection: %v", err)
			continue
		}

		session, err := proxy.NewSession(connection, remote, d, state.Logger)
		if err != nil {
			state.Logger.Warnf("proxy: %v", err)
			_ = connection.Close()
			continue
		}
		go session.Run()
	}
}
