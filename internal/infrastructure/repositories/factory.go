package repositories

import (
	"context"

	"collabgate/internal/core/ports"
	"collabgate/internal/infrastructure/repositories/gormstore"
	"collabgate/internal/infrastructure/repositories/memory"
	redisrepo "collabgate/internal/infrastructure/repositories/redis"
	"collabgate/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	useDatabase bool
	redisClient *redis.Client
	db          *gorm.DB
	logger      *zap.Logger

	// Memory permission repo doubles as the document store; keep a
	// single instance so seeded documents are visible to both ports.
	memoryPermissions *memory.MemoryPermissionRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis:          cfg.Redis.Enabled,
		useDatabase:       cfg.Database.Enabled,
		logger:            logger,
		memoryPermissions: memory.NewMemoryPermissionRepository(),
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warn("failed to connect to Redis, falling back to memory policy repository",
				zap.Error(err),
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis policy repository")
		}
	}

	// Try to connect to the database if enabled
	if cfg.Database.Enabled {
		db, err := gormstore.InitDB(cfg.Database.DSN)
		if err != nil {
			logger.Warn("failed to connect to database, falling back to memory session repository",
				zap.Error(err),
			)
			factory.useDatabase = false
		} else {
			factory.db = db
			logger.Info("using database session repository")
		}
	}

	return factory, nil
}

// CreatePermissionRepository creates the permission repository.
// Permissions are owned by the main application; without a shared
// database the gateway serves them from its seeded memory store.
func (f *RepositoryFactory) CreatePermissionRepository() ports.PermissionRepository {
	return f.memoryPermissions
}

// CreateDocumentStore creates the document content store.
func (f *RepositoryFactory) CreateDocumentStore() ports.DocumentStore {
	return f.memoryPermissions
}

// MemoryPermissions returns the seedable memory store for development
// fixtures.
func (f *RepositoryFactory) MemoryPermissions() *memory.MemoryPermissionRepository {
	return f.memoryPermissions
}

// CreatePolicyRepository creates a policy repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreatePolicyRepository() ports.PolicyRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisPolicyRepository(f.redisClient)
	}
	return memory.NewMemoryPolicyRepository()
}

// CreateSessionRepository creates a session repository (database or memory with fallback)
func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	if f.useDatabase && f.db != nil {
		return gormstore.NewGormSessionRepository(f.db)
	}
	return memory.NewMemorySessionRepository()
}

// RedisClient returns the shared Redis client, or nil when Redis is
// disabled or unreachable.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

// Close closes external connections if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		client := f.redisClient
		f.redisClient = nil
		return redisrepo.CloseRedisClient(client)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
