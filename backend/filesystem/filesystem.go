// Package filesystem implements the tag-aware pool's local storage back-end:
// items as sharded content files, tags as directories of symlinks.
package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/silverpine/tagcache/backend"
	"github.com/silverpine/tagcache/internal/keys"
)

// Driver stores items under <root>/<aa>/<bb>/<tail> and tag relations as
// symlinks under <root>/tags/<tag>/<link>.
type Driver struct {
	root string
}

var _ backend.Driver = (*Driver)(nil)

// Config configures the filesystem driver. Root defaults to a tagcache
// subdirectory of os.TempDir() when empty, matching the spec's default.
type Config struct {
	Root string
}

func New(cfg Config) (*Driver, error) {
	root := cfg.Root
	if root == "" {
		root = filepath.Join(os.TempDir(), "tagcache")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: create root %q: %w", root, err)
	}
	return &Driver{root: root}, nil
}

func (d *Driver) itemPath(id string) string {
	aa, bb, tail := keys.Shard(id)
	return filepath.Join(d.root, aa, bb, tail)
}

func (d *Driver) tagDir(tagID string) string {
	return filepath.Join(d.root, "tags", keys.Hash(tagID))
}

func (d *Driver) linkPath(tagID, itemID string) string {
	return filepath.Join(d.tagDir(tagID), keys.LinkName(itemID))
}

func (d *Driver) Fetch(ctx context.Context, ids []string) <-chan backend.FetchResult {
	ch := make(chan backend.FetchResult, len(ids))
	go func() {
		defer close(ch)
		for _, id := range ids {
			select {
			case <-ctx.Done():
				return
			default:
			}
			b, err := d.fetchOne(id)
			if err != nil || b == nil {
				continue // tolerated miss; never raise out of a read path
			}
			ch <- backend.FetchResult{ID: id, Bytes: b}
		}
	}()
	return ch
}

// fetchOne reads and validates one item file. It self-heals (unlinks) and
// returns (nil, nil) — a tolerated miss — for any corruption: unparsable
// header, expired entry, or an id mismatch (hash-collision safeguard).
func (d *Driver) fetchOne(id string) ([]byte, error) {
	p := d.itemPath(id)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	nl1 := bytes.IndexByte(data, '\n')
	if nl1 < 0 {
		_ = os.Remove(p)
		return nil, nil
	}
	expiresStr := string(data[:nl1])
	rest := data[nl1+1:]

	nl2 := bytes.IndexByte(rest, '\n')
	if nl2 < 0 {
		_ = os.Remove(p)
		return nil, nil
	}
	encID := string(rest[:nl2])
	payload := rest[nl2+1:]

	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		_ = os.Remove(p)
		return nil, nil
	}
	if expiresAt != 0 && time.Now().Unix() >= expiresAt {
		_ = os.Remove(p)
		return nil, nil
	}

	gotID, err := keys.URLDecodeID(encID)
	if err != nil || gotID != id {
		_ = os.Remove(p) // stored id doesn't match requested id: collision or corruption
		return nil, nil
	}

	return payload, nil
}

func (d *Driver) Save(ctx context.Context, records []backend.Record, ttl time.Duration, delta backend.TagDelta) ([]string, error) {
	var failed []string
	unwritable := false

	for _, r := range records {
		select {
		case <-ctx.Done():
			failed = append(failed, r.ID)
			continue
		default:
		}
		if err := d.writeAtomic(r.ID, ttl, r.Bytes); err != nil {
			if os.IsPermission(err) {
				unwritable = true
			}
			failed = append(failed, r.ID)
			continue
		}
	}

	if unwritable {
		return failed, &backend.FatalError{Op: "save", Err: errors.New("filesystem: root not writable")}
	}

	d.applyAdd(delta.Add)
	d.applyRemove(delta.Remove)

	return failed, nil
}

func (d *Driver) writeAtomic(id string, ttl time.Duration, payload []byte) error {
	p := d.itemPath(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}
	header := fmt.Sprintf("%d\n%s\n", expiresAt, keys.URLEncodeID(id))

	tmp := p + ".tmp-" + uuid.NewString()
	content := make([]byte, 0, len(header)+len(payload))
	content = append(content, header...)
	content = append(content, payload...)

	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p) // write-then-rename: avoids torn writes from racing writers
}

func (d *Driver) applyAdd(add map[string][]string) {
	for tagID, itemIDs := range add {
		dir := d.tagDir(tagID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		for _, id := range itemIDs {
			// Duplicate symlinks (EEXIST) are tolerated: the link name is
			// deterministic, so a repeat add is idempotent.
			_ = os.Symlink(d.itemPath(id), d.linkPath(tagID, id))
		}
	}
}

func (d *Driver) applyRemove(remove map[string][]string) {
	for tagID, itemIDs := range remove {
		for _, id := range itemIDs {
			_ = os.Remove(d.linkPath(tagID, id)) // missing links tolerated
		}
	}
}

func (d *Driver) Delete(ctx context.Context, ids []string) (bool, error) {
	ok := true
	for _, id := range ids {
		if err := os.Remove(d.itemPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			ok = false
		}
	}
	return ok, nil
}

func (d *Driver) DeleteTagRelations(ctx context.Context, tagData map[string][]string) (bool, error) {
	d.applyRemove(tagData)
	return true, nil
}

// Invalidate renames each tag directory to a random sibling name before
// sweeping it, so a concurrent save adding a fresh symlink under the
// original tag name is not caught by this sweep (it lands in a brand-new
// directory created on demand by the next applyAdd).
func (d *Driver) Invalidate(ctx context.Context, tagIDs []string) (bool, error) {
	ok := true
	for _, tagID := range tagIDs {
		dir := d.tagDir(tagID)
		renamed := dir + ".invalidating-" + uuid.NewString()

		if err := os.Rename(dir, renamed); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // tag never had any items: no-op success
			}
			ok = false
			continue
		}

		_ = filepath.WalkDir(renamed, func(path string, de fs.DirEntry, err error) error {
			if err != nil || de.IsDir() {
				return nil
			}
			if target, lerr := os.Readlink(path); lerr == nil {
				_ = os.Remove(target)
			}
			_ = os.Remove(path)
			return nil
		})

		_ = os.RemoveAll(renamed)
	}
	return ok, nil
}

func (d *Driver) Close(ctx context.Context) error { return nil }
