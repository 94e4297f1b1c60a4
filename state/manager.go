package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"escrowd/escrow"
	"escrowd/storage"
	"escrowd/token"
)

var (
	escrowRecordPrefix = []byte("escrowd/record/")
	configKeyRaw       = []byte("escrowd/config")
	adminKeyRaw        = []byte("escrowd/admin")
	vaultPrefix        = []byte("escrowd/vault/")
)

// Extender receives a liveness hint after every write so TTL-based stores can
// extend the record's lifetime. Stores without a TTL concept leave it nil.
type Extender func(key []byte)

// Manager maps escrow identifiers to persisted records on top of a raw
// key-value Database, and owns the singleton configuration and admin entries.
// All accessors are linearizable: a single RWMutex guards the underlying
// store so a reader never observes a partially-written value.
type Manager struct {
	mu     sync.RWMutex
	db     storage.Database
	extend Extender
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// SetExtender installs the optional TTL hint invoked after every write.
func (m *Manager) SetExtender(extend Extender) { m.extend = extend }

func escrowStorageKey(id uint64) []byte {
	buf := make([]byte, len(escrowRecordPrefix)+8)
	copy(buf, escrowRecordPrefix)
	binary.BigEndian.PutUint64(buf[len(escrowRecordPrefix):], id)
	return ethcrypto.Keccak256(buf)
}

func configKey() []byte { return ethcrypto.Keccak256(configKeyRaw) }

func adminKey() []byte { return ethcrypto.Keccak256(adminKeyRaw) }

type storedMilestone struct {
	Amount      *big.Int
	Status      uint8
	Description string
}

type storedEscrow struct {
	ID            uint64
	Depositor     [20]byte
	Recipient     [20]byte
	Token         string
	TotalAmount   *big.Int
	TotalReleased *big.Int
	Milestones    []storedMilestone
	Status        uint8
	Deadline      uint64
	Resolution    uint8
}

func newStoredEscrow(e *escrow.Escrow) *storedEscrow {
	record := &storedEscrow{
		ID:            e.ID,
		Depositor:     e.Depositor,
		Recipient:     e.Recipient,
		Token:         e.Token,
		TotalAmount:   new(big.Int).Set(e.TotalAmount),
		TotalReleased: new(big.Int).Set(e.TotalReleased),
		Milestones:    make([]storedMilestone, len(e.Milestones)),
		Status:        uint8(e.Status),
		Deadline:      e.Deadline,
		Resolution:    uint8(e.Resolution),
	}
	for i, m := range e.Milestones {
		record.Milestones[i] = storedMilestone{
			Amount:      new(big.Int).Set(m.Amount),
			Status:      uint8(m.Status),
			Description: m.Description,
		}
	}
	return record
}

func (s *storedEscrow) toEscrow() (*escrow.Escrow, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil escrow record")
	}
	out := &escrow.Escrow{
		ID:            s.ID,
		Depositor:     s.Depositor,
		Recipient:     s.Recipient,
		Token:         s.Token,
		TotalAmount:   big.NewInt(0),
		TotalReleased: big.NewInt(0),
		Status:        escrow.EscrowStatus(s.Status),
		Deadline:      s.Deadline,
		Resolution:    escrow.Resolution(s.Resolution),
	}
	if s.TotalAmount != nil {
		out.TotalAmount = new(big.Int).Set(s.TotalAmount)
	}
	if s.TotalReleased != nil {
		out.TotalReleased = new(big.Int).Set(s.TotalReleased)
	}
	out.Milestones = make([]*escrow.Milestone, len(s.Milestones))
	for i, m := range s.Milestones {
		milestone := &escrow.Milestone{
			Amount:      big.NewInt(0),
			Status:      escrow.MilestoneStatus(m.Status),
			Description: m.Description,
		}
		if m.Amount != nil {
			milestone.Amount = new(big.Int).Set(m.Amount)
		}
		out.Milestones[i] = milestone
	}
	return escrow.SanitizeEscrow(out)
}

// EscrowPut sanitizes and persists the record, then fires the TTL hint.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredEscrow(sanitized))
	if err != nil {
		return err
	}
	key := escrowStorageKey(sanitized.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Put(key, encoded); err != nil {
		return err
	}
	m.hintExtend(key)
	return nil
}

// EscrowGet loads and decodes the record for the given identifier.
func (m *Manager) EscrowGet(id uint64) (*escrow.Escrow, bool) {
	m.mu.RLock()
	data, err := m.db.Get(escrowStorageKey(id))
	m.mu.RUnlock()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedEscrow)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	record, err := stored.toEscrow()
	if err != nil {
		return nil, false
	}
	return record, true
}

// EscrowHas reports whether an identifier has ever been used.
func (m *Manager) EscrowHas(id uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db.Has(escrowStorageKey(id))
}

type storedConfig struct {
	Treasury [20]byte
	FeeBps   uint64
	Paused   bool
}

// ConfigPut persists the platform configuration singleton.
func (m *Manager) ConfigPut(cfg *escrow.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil config")
	}
	if cfg.FeeBps < 0 || cfg.FeeBps > escrow.BpsDenominator {
		return escrow.ErrInvalidFeeConfig
	}
	encoded, err := rlp.EncodeToBytes(&storedConfig{
		Treasury: cfg.Treasury,
		FeeBps:   uint64(cfg.FeeBps),
		Paused:   cfg.Paused,
	})
	if err != nil {
		return err
	}
	key := configKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Put(key, encoded); err != nil {
		return err
	}
	m.hintExtend(key)
	return nil
}

// ConfigGet returns the committed configuration, reporting absence rather
// than erroring when it was never initialized.
func (m *Manager) ConfigGet() (*escrow.Config, bool, error) {
	m.mu.RLock()
	data, err := m.db.Get(configKey())
	m.mu.RUnlock()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	stored := new(storedConfig)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, err
	}
	return &escrow.Config{
		Treasury: stored.Treasury,
		FeeBps:   int64(stored.FeeBps),
		Paused:   stored.Paused,
	}, true, nil
}

// AdminPut registers the arbitration admin singleton.
func (m *Manager) AdminPut(admin [20]byte) error {
	key := adminKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Put(key, admin[:]); err != nil {
		return err
	}
	m.hintExtend(key)
	return nil
}

// AdminGet returns the registered admin, reporting absence when unset.
func (m *Manager) AdminGet() ([20]byte, bool, error) {
	var admin [20]byte
	m.mu.RLock()
	data, err := m.db.Get(adminKey())
	m.mu.RUnlock()
	if errors.Is(err, storage.ErrNotFound) {
		return admin, false, nil
	}
	if err != nil {
		return admin, false, err
	}
	if len(data) != len(admin) {
		return admin, false, fmt.Errorf("state: malformed admin record")
	}
	copy(admin[:], data)
	return admin, true, nil
}

// VaultAddress derives the deterministic custody address for a token.
func (m *Manager) VaultAddress(tok string) ([20]byte, error) {
	var addr [20]byte
	normalized, err := token.NormalizeToken(tok)
	if err != nil {
		return addr, err
	}
	buf := make([]byte, 0, len(vaultPrefix)+len(normalized))
	buf = append(buf, vaultPrefix...)
	buf = append(buf, normalized...)
	hash := ethcrypto.Keccak256(buf)
	copy(addr[:], hash[12:])
	return addr, nil
}

func (m *Manager) hintExtend(key []byte) {
	if m.extend == nil {
		return
	}
	m.extend(key)
}
