package journal

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"driftpursuit/netplay/internal/logging"
)

// RetentionPolicy bounds how many journal bundles stay on disk.
type RetentionPolicy struct {
	MaxSessions int
	MaxAge      time.Duration
}

// StorageStats summarises the bundles kept by the last sweep.
type StorageStats struct {
	Sessions  int
	Removed   int
	Bytes     int64
	LastSweep time.Time
}

// Cleaner prunes journal bundles under a root directory.
type Cleaner struct {
	mu     sync.RWMutex
	root   string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for root.
func NewCleaner(root string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{
		root:   root,
		policy: policy,
		log:    logger.With(logging.String("component", "journal_retention")),
		now:    time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx ends.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stats returns the statistics of the last sweep.
func (c *Cleaner) Stats() StorageStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type bundle struct {
	path    string
	created time.Time
	size    int64
}

// Sweep removes bundles past the policy. Directories without a readable
// manifest are not journal bundles and are left alone.
func (c *Cleaner) Sweep() StorageStats {
	now := c.now()
	stats := StorageStats{LastSweep: now}
	if strings.TrimSpace(c.root) == "" {
		return stats
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		c.log.Warn("journal retention scan failed", logging.Error(err), logging.String("directory", c.root))
		return stats
	}

	//1.- Collect bundles newest first.
	var bundles []bundle
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.root, entry.Name())
		manifest, err := ReadManifest(path)
		if err != nil {
			continue
		}
		size, err := directorySize(path)
		if err != nil {
			c.log.Warn("journal retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		bundles = append(bundles, bundle{path: path, created: manifest.Created(), size: size})
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].created.After(bundles[j].created) })

	//2.- Age limits apply first, then the count limit over what survives.
	kept := 0
	for _, b := range bundles {
		reason := c.expired(b, now, kept)
		if reason == "" {
			kept++
			stats.Sessions++
			stats.Bytes += b.size
			continue
		}
		if err := os.RemoveAll(b.path); err != nil {
			c.log.Warn("journal retention removal failed", logging.Error(err), logging.String("path", b.path))
			kept++
			stats.Sessions++
			stats.Bytes += b.size
			continue
		}
		stats.Removed++
		c.log.Info("journal retention removed bundle", logging.String("path", b.path), logging.String("reason", reason))
	}

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
	return stats
}

func (c *Cleaner) expired(b bundle, now time.Time, kept int) string {
	var reasons []string
	if c.policy.MaxAge > 0 && now.Sub(b.created) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxSessions > 0 && kept >= c.policy.MaxSessions {
		reasons = append(reasons, fmt.Sprintf(">=%d sessions", c.policy.MaxSessions))
	}
	return strings.Join(reasons, ", ")
}

func directorySize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
