package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/settings"
)

var (
	dbPoolMap    = make(map[string]*pgxpool.Pool) // Map to store database connection pools
	dbPoolMutex  sync.Mutex                       // Mutex to ensure thread safety for dbPoolMap
	poolLastUsed = make(map[string]time.Time)     // Map to track last usage time of each pool
	poolLeases   = make(map[string]int)           // Number of callers still holding each pool
	idleDuration = 2 * time.Minute
	scheduler    *cron.Cron
)

// StartCleanup schedules closing idle database connection pools every
// minute. Calling it more than once has no effect.
func StartCleanup() error {
	dbPoolMutex.Lock()
	defer dbPoolMutex.Unlock()

	if scheduler != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc("@every 1m", cleanupIdlePools); err != nil {
		return fmt.Errorf("error scheduling pool cleanup: %w", err)
	}
	c.Start()
	scheduler = c

	return nil
}

// cleanupIdlePools closes pools that are not leased, were not handed out
// recently and have no connection in use.
func cleanupIdlePools() {
	dbPoolMutex.Lock()
	defer dbPoolMutex.Unlock()

	for name, pool := range dbPoolMap {
		if poolLeases[name] > 0 {
			continue
		}

		lastUsed, ok := poolLastUsed[name]
		if ok && time.Since(lastUsed) <= idleDuration {
			continue
		}

		stats := pool.Stat()
		if stats.TotalConns() == stats.IdleConns() {
			pool.Close()
			delete(dbPoolMap, name)
			delete(poolLastUsed, name)
			log.Debugf("Closed idle database pool: %s", name)
		} else {
			log.Debugf("Pool %s is active, skipping cleanup", name)
		}
	}
}

// CloseDBPools stops the cleanup schedule and closes all the database
// connection pools.
func CloseDBPools() {
	dbPoolMutex.Lock()
	defer dbPoolMutex.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
		scheduler = nil
	}

	for _, pool := range dbPoolMap {
		pool.Close()
	}
	dbPoolMap = make(map[string]*pgxpool.Pool)
	poolLastUsed = make(map[string]time.Time)
	poolLeases = make(map[string]int)
}

// NewPool opens a connection pool limited to the configured number of
// connections and checks the database is reachable. The caller owns the pool.
func NewPool(ctx context.Context, config settings.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	poolConfig.MaxConns = config.MaxConnections

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// GetDBPool returns a database connection pool for the specified name.
// If a pool with the given name already exists, it returns the existing pool.
// Otherwise, it creates a new pool and adds it to the pool map.
// The pool is leased to the caller until ReleaseDBPool is called, the idle
// cleanup leaves leased pools open.
func GetDBPool(name string, config settings.DatabaseConfig) (*pgxpool.Pool, error) {
	dbPoolMutex.Lock()
	defer dbPoolMutex.Unlock()

	if pool, ok := dbPoolMap[name]; ok {
		poolLastUsed[name] = time.Now()
		poolLeases[name]++
		return pool, nil
	}

	pool, err := NewPool(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database '%s': %w", name, err)
	}

	log.Debugf("Opened new database pool: %s", name)
	dbPoolMap[name] = pool
	poolLastUsed[name] = time.Now()
	poolLeases[name]++
	return pool, nil
}

// ReleaseDBPool ends a lease taken with GetDBPool.
func ReleaseDBPool(name string) {
	dbPoolMutex.Lock()
	defer dbPoolMutex.Unlock()

	if poolLeases[name] > 0 {
		poolLeases[name]--
	}
	poolLastUsed[name] = time.Now()
}
