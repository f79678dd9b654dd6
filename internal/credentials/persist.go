package credentials

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/valkey-io/valkey-go"
)

// Persister stores sessions outside the process so they survive restarts.
type Persister interface {
	// Load returns the credential for id. found is false when it does not exist.
	Load(ctx context.Context, id string) (cred Credential, found bool, err error)
	Save(ctx context.Context, id string, cred Credential) error
	Delete(ctx context.Context, id string) error
}

// StorageType selects a Persister implementation.
type StorageType string

const (
	StorageTypeMemory StorageType = "memory"
	StorageTypeFile   StorageType = "file"
	StorageTypeValkey StorageType = "valkey"
)

// MemoryPersister keeps nothing. Sessions live only in the Store.
type MemoryPersister struct{}

func (MemoryPersister) Load(context.Context, string) (Credential, bool, error) {
	return Credential{}, false, nil
}
func (MemoryPersister) Save(context.Context, string, Credential) error { return nil }
func (MemoryPersister) Delete(context.Context, string) error           { return nil }

// FilePersister keeps all sessions in one JSON file, written with 0600 permissions.
type FilePersister struct {
	mu    sync.Mutex
	path  string
	codec *Codec
}

// DefaultSessionFilePath returns $XDG_DATA_HOME/coachcontacts/sessions.json,
// creating the parent directory.
func DefaultSessionFilePath() (string, error) {
	path, err := xdg.DataFile(filepath.Join("coachcontacts", "sessions.json"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve session file path: %w", err)
	}
	return path, nil
}

// NewFilePersister returns a FilePersister writing to path.
func NewFilePersister(path string, codec *Codec) (*FilePersister, error) {
	if path == "" {
		var err error
		if path, err = DefaultSessionFilePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FilePersister{path: path, codec: codec}, nil
}

// Path returns the session file location.
func (p *FilePersister) Path() string { return p.path }

func (p *FilePersister) read() (map[string]string, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	entries := map[string]string{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return entries, nil
}

func (p *FilePersister) write(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (p *FilePersister) Load(_ context.Context, id string) (Credential, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.read()
	if err != nil {
		return Credential{}, false, err
	}
	value, ok := entries[id]
	if !ok {
		return Credential{}, false, nil
	}
	cred, err := p.codec.Decode(value)
	if err != nil {
		return Credential{}, false, err
	}
	return cred, true, nil
}

func (p *FilePersister) Save(_ context.Context, id string, cred Credential) error {
	value, err := p.codec.Encode(cred)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.read()
	if err != nil {
		return err
	}
	entries[id] = value
	return p.write(entries)
}

func (p *FilePersister) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := p.read()
	if err != nil {
		return err
	}
	if _, ok := entries[id]; !ok {
		return nil
	}
	delete(entries, id)
	return p.write(entries)
}

// ValkeyConfig configures the Valkey session persister.
type ValkeyConfig struct {
	// Addr is the server address, e.g. "valkey.namespace.svc:6379".
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	TLSEnabled bool
	// TTL bounds how long an idle session is kept. Zero means 30 days.
	TTL time.Duration
}

const defaultValkeyTTL = 30 * 24 * time.Hour

// ValkeyPersister stores each session under "<prefix>session:<id>" with a TTL.
type ValkeyPersister struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
	codec  *Codec
}

// NewValkeyPersister connects to Valkey.
func NewValkeyPersister(cfg ValkeyConfig, codec *Codec) (*ValkeyPersister, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("valkey address is required when session storage type is valkey")
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return newValkeyPersister(client, cfg, codec), nil
}

func newValkeyPersister(client valkey.Client, cfg ValkeyConfig, codec *Codec) *ValkeyPersister {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultValkeyTTL
	}
	return &ValkeyPersister{client: client, prefix: cfg.KeyPrefix, ttl: ttl, codec: codec}
}

func (p *ValkeyPersister) key(id string) string {
	return p.prefix + "session:" + id
}

func (p *ValkeyPersister) Load(ctx context.Context, id string) (Credential, bool, error) {
	value, err := p.client.Do(ctx, p.client.B().Get().Key(p.key(id)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	cred, err := p.codec.Decode(value)
	if err != nil {
		return Credential{}, false, err
	}
	return cred, true, nil
}

func (p *ValkeyPersister) Save(ctx context.Context, id string, cred Credential) error {
	value, err := p.codec.Encode(cred)
	if err != nil {
		return err
	}
	cmd := p.client.B().Set().Key(p.key(id)).Value(value).ExSeconds(int64(p.ttl / time.Second)).Build()
	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (p *ValkeyPersister) Delete(ctx context.Context, id string) error {
	if err := p.client.Do(ctx, p.client.B().Del().Key(p.key(id)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close releases the Valkey connection.
func (p *ValkeyPersister) Close() {
	p.client.Close()
}
