package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pixelpet/internal/config"
	"pixelpet/internal/githubapi"
	"pixelpet/internal/statestore"
)

// newStateStore builds the configured persistence backend. A Redis backend
// that cannot be reached falls back to in-memory storage; a broken file
// backend is a hard error.
func newStateStore(cfg *config.Config, logger *zap.Logger) (statestore.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreFile:
		fileStore, err := statestore.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		return fileStore, nil
	case config.StoreRedis:
		redisStore, err := newRedisStoreFromConfig(cfg)
		if err != nil {
			logger.Warn("failed to initialize redis store; falling back to in-memory store", zap.Error(err))
			return statestore.NewMemoryStore(), nil
		}
		return redisStore, nil
	case config.StoreMemory:
		return statestore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newRedisStoreFromConfig(cfg *config.Config) (*statestore.RedisStore, error) {
	var redisClient redis.UniversalClient
	if strings.EqualFold(cfg.Store.RedisMode, "sentinel") {
		redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.Store.RedisMasterSet,
			SentinelAddrs: cfg.Store.RedisSentinelAddrs,
			Password:      cfg.Store.RedisPassword,
			DB:            cfg.Store.RedisDB,
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return statestore.NewRedisStore(redisClient, statestore.RedisStoreConfig{
		Namespace: cfg.Store.Namespace,
	}), nil
}

// newGitHubClient builds the API client for the configured auth mode. A
// token stored from an earlier login wins over the configured one.
func newGitHubClient(cfg *config.Config, storedToken string) (*githubapi.Client, error) {
	clientConfig := githubapi.ClientConfig{
		APIBaseURL: cfg.GitHub.APIBaseURL,
	}

	switch cfg.GitHub.Auth {
	case config.AuthApp:
		httpClient, err := githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.GitHub.AppID,
			InstallationID: cfg.GitHub.InstallationID,
			PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
			Timeout:        cfg.GitHub.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init app auth: %w", err)
		}
		clientConfig.HTTPClient = httpClient
	default:
		clientConfig.Token = cfg.GitHub.Token
		if storedToken != "" {
			clientConfig.Token = storedToken
		}
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.GitHub.RequestTimeout}
	}

	client, err := githubapi.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("init github client: %w", err)
	}
	return client, nil
}
