package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/observability"
)

// policyFile is the on-disk shape: operation name to allowed roles.
//
//	{
//	  "operations": {
//	    "requests.review": ["super_admin"],
//	    "directory.list":  ["admin", "super_admin"]
//	  }
//	}
type policyFile struct {
	Operations map[string][]governance.Role `json:"operations"`
}

// Policy maps operation names to the roles allowed to enter them. It is
// safe for concurrent use; Watch swaps the mapping in place when the
// file changes.
type Policy struct {
	path string

	mu  sync.RWMutex
	ops map[string][]governance.Role
}

// LoadPolicy reads and validates the policy file.
func LoadPolicy(path string) (*Policy, error) {
	p := &Policy{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the policy file. On any error the previous mapping
// stays in effect.
func (p *Policy) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read policy %s: %w", p.path, err)
	}

	var file policyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse policy %s: %w", p.path, err)
	}
	for operation, roles := range file.Operations {
		for _, role := range roles {
			if !role.Valid() {
				return fmt.Errorf("policy %s: operation %q allows unknown role %q", p.path, operation, role)
			}
		}
	}

	p.mu.Lock()
	p.ops = file.Operations
	p.mu.Unlock()
	return nil
}

// RolesFor returns the roles allowed to perform the operation. An
// operation absent from the policy is allowed to nobody below
// super_admin.
func (p *Policy) RolesFor(operation string) ([]governance.Role, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	roles, ok := p.ops[operation]
	return roles, ok
}

// Watch reloads the policy whenever the file changes, until ctx is
// done. It watches the parent directory so atomic rename-into-place
// saves are seen too. Blocks; run it in its own goroutine.
func (p *Policy) Watch(ctx context.Context, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("watch policy dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if err := p.Reload(); err != nil {
				logger.WithError(err).Warn("policy reload failed, previous policy stays in effect")
				continue
			}
			logger.WithField("path", p.path).Info("authorization policy reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("policy watcher error")
		}
	}
}
