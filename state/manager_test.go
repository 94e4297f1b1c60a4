package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/escrow"
	"escrowd/storage"
)

func testRecord(id uint64) *escrow.Escrow {
	return &escrow.Escrow{
		ID:            id,
		Depositor:     [20]byte{0x01},
		Recipient:     [20]byte{0x02},
		Token:         "USDX",
		TotalAmount:   big.NewInt(10000),
		TotalReleased: big.NewInt(4000),
		Milestones: []*escrow.Milestone{
			{Amount: big.NewInt(4000), Status: escrow.MilestoneReleased, Description: "design"},
			{Amount: big.NewInt(6000), Status: escrow.MilestonePending, Description: "build"},
		},
		Status:     escrow.StatusActive,
		Deadline:   1_900_000_000,
		Resolution: escrow.ResolutionNone,
	}
}

func TestManagerEscrowRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	require.NoError(t, m.EscrowPut(testRecord(1)))

	loaded, ok := m.EscrowGet(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), loaded.ID)
	require.Equal(t, "USDX", loaded.Token)
	require.Zero(t, loaded.TotalAmount.Cmp(big.NewInt(10000)))
	require.Zero(t, loaded.TotalReleased.Cmp(big.NewInt(4000)))
	require.Len(t, loaded.Milestones, 2)
	require.Equal(t, escrow.MilestoneReleased, loaded.Milestones[0].Status)
	require.Equal(t, "build", loaded.Milestones[1].Description)
	require.Equal(t, escrow.StatusActive, loaded.Status)

	has, err := m.EscrowHas(1)
	require.NoError(t, err)
	require.True(t, has)
	has, err = m.EscrowHas(2)
	require.NoError(t, err)
	require.False(t, has)
}

func TestManagerEscrowPutSanitizes(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	bad := testRecord(1)
	bad.Recipient = bad.Depositor
	require.ErrorIs(t, m.EscrowPut(bad), escrow.ErrSelfDealing)
}

func TestManagerGetMissing(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	_, ok := m.EscrowGet(99)
	require.False(t, ok)
}

func TestManagerRejectsCorruptRecord(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	require.NoError(t, db.Put(escrowStorageKey(5), []byte{0xde, 0xad}))
	_, ok := m.EscrowGet(5)
	require.False(t, ok)
}

func TestManagerConfigRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	_, ok, err := m.ConfigGet()
	require.NoError(t, err)
	require.False(t, ok)

	cfg := &escrow.Config{Treasury: [20]byte{0x33}, FeeBps: 75, Paused: true}
	require.NoError(t, m.ConfigPut(cfg))

	loaded, ok, err := m.ConfigGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cfg.Treasury, loaded.Treasury)
	require.Equal(t, int64(75), loaded.FeeBps)
	require.True(t, loaded.Paused)

	out := &escrow.Config{FeeBps: 10001}
	require.ErrorIs(t, m.ConfigPut(out), escrow.ErrInvalidFeeConfig)
}

func TestManagerAdminRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	_, ok, err := m.AdminGet()
	require.NoError(t, err)
	require.False(t, ok)

	admin := [20]byte{0x44}
	require.NoError(t, m.AdminPut(admin))
	loaded, ok, err := m.AdminGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, admin, loaded)
}

func TestManagerVaultAddress(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	a, err := m.VaultAddress("USDX")
	require.NoError(t, err)
	b, err := m.VaultAddress("usdx")
	require.NoError(t, err)
	require.Equal(t, a, b, "vault derivation must be case-insensitive")

	c, err := m.VaultAddress("OTHER")
	require.NoError(t, err)
	require.NotEqual(t, a, c, "distinct tokens must get distinct vaults")

	_, err = m.VaultAddress("  ")
	require.Error(t, err)
}

func TestManagerExtenderHint(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	var hinted [][]byte
	m.SetExtender(func(key []byte) { hinted = append(hinted, key) })

	require.NoError(t, m.EscrowPut(testRecord(1)))
	require.NoError(t, m.ConfigPut(&escrow.Config{Treasury: [20]byte{0x33}, FeeBps: 50}))
	require.NoError(t, m.AdminPut([20]byte{0x44}))
	require.Len(t, hinted, 3)
}
