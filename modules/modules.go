package modules

const (
	// PoolManagerDir names the directory that contains the per-pool
	// persistence. Each pool gets its own subdirectory keyed by pool id.
	PoolManagerDir = "pools"

	// PoolStoreDir names the directory that contains the pool and worker
	// database.
	PoolStoreDir = "store"
)
