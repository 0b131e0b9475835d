package historize

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar-conmit/hedera-mirror-node/batch"
	"github.com/ar-conmit/hedera-mirror-node/domain"
	"github.com/ar-conmit/hedera-mirror-node/merge"
	"github.com/ar-conmit/hedera-mirror-node/storage"
)

const (
	tokenKey   = "0.0.100"
	accountKey = "0.0.5"
	assocKey   = tokenKey + "/" + accountKey
)

type harness struct {
	t         *testing.T
	store     *storage.Store
	registry  *merge.Registry
	committer *Committer
	index     int64
}

func newHarness(t *testing.T, flushRows int) *harness {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := storage.New(db, "sqlite", flushRows, nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	registry := merge.NewRegistry()
	return &harness{
		t:         t,
		store:     store,
		registry:  registry,
		committer: NewCommitter(store, registry, nil, nil),
	}
}

func (h *harness) nextRecordFile() *domain.RecordFile {
	h.index++
	rf := &domain.RecordFile{
		Index:          h.index,
		Name:           fmt.Sprintf("file-%d.rcd", h.index),
		ConsensusStart: h.index * 100,
		ConsensusEnd:   h.index*100 + 99,
		Hash:           fmt.Sprintf("hash-%d", h.index),
		Count:          1,
	}
	if h.index > 1 {
		rf.PrevHash = fmt.Sprintf("hash-%d", h.index-1)
	}
	return rf
}

func (h *harness) stage(mutations ...domain.Mutation) *batch.Batch {
	h.t.Helper()
	b := batch.New(h.registry)
	for _, m := range mutations {
		require.NoError(h.t, b.Apply(m))
	}
	return b
}

// file stages and commits one record file.
func (h *harness) file(mutations ...domain.Mutation) Result {
	h.t.Helper()
	res, err := h.committer.Commit(context.Background(), h.stage(mutations...), h.nextRecordFile())
	require.NoError(h.t, err)
	return res
}

func (h *harness) history(t domain.EntityType, key string) []domain.VersionedRecord {
	h.t.Helper()
	versions, err := h.store.History(context.Background(), t, key)
	require.NoError(h.t, err)
	return versions
}

func (h *harness) count(t domain.EntityType) int64 {
	h.t.Helper()
	n, err := h.store.CountCurrent(context.Background(), t)
	require.NoError(h.t, err)
	return n
}

func mutation(t domain.EntityType, key string, ts int64, f domain.Fields) domain.Mutation {
	return domain.Mutation{Type: t, Key: key, Timestamp: ts, Fields: f}
}

func lowers(versions []domain.VersionedRecord) []int64 {
	out := make([]int64, len(versions))
	for i, v := range versions {
		out[i] = v.Lower
	}
	return out
}

// assertChain checks exactly one current version, last, with every closed
// version ending where the next begins.
func assertChain(t *testing.T, versions []domain.VersionedRecord) {
	t.Helper()
	require.NotEmpty(t, versions)
	for i, v := range versions {
		if i == len(versions)-1 {
			assert.Nil(t, v.Upper, "last version must be current")
			continue
		}
		require.NotNil(t, v.Upper, "version %d must be closed", i)
		assert.Equal(t, versions[i+1].Lower, *v.Upper, "gap or overlap after version %d", i)
		assert.Less(t, v.Lower, *v.Upper)
	}
}

func TestCommitFoldsCreateUpdateDelete(t *testing.T) {
	h := newHarness(t, 100)
	res := h.file(
		mutation(domain.TypeEntity, accountKey, 1, &domain.EntityFields{CreatedTimestamp: domain.Some(int64(1)), Memo: domain.Some("created")}),
		mutation(domain.TypeEntity, accountKey, 2, &domain.EntityFields{Memo: domain.Some("updated")}),
		mutation(domain.TypeEntity, accountKey, 3, &domain.EntityFields{Deleted: domain.Some(true)}),
	)
	assert.Equal(t, 2, res.HistoryRows)
	assert.Equal(t, 1, res.CurrentRows)

	versions := h.history(domain.TypeEntity, accountKey)
	require.Len(t, versions, 3)
	assertChain(t, versions)
	assert.Equal(t, []int64{1, 2, 3}, lowers(versions))

	current := versions[2].Fields.(*domain.EntityFields)
	deleted, _ := current.Deleted.Get()
	memo, _ := current.Memo.Get()
	assert.True(t, deleted)
	assert.Equal(t, "updated", memo)

	first, _ := versions[0].Fields.(*domain.EntityFields).Memo.Get()
	assert.Equal(t, "created", first)
}

func TestCommitMergesAcrossRecordFiles(t *testing.T) {
	h := newHarness(t, 100)
	h.file(mutation(domain.TypeEntity, accountKey, 10, &domain.EntityFields{
		CreatedTimestamp: domain.Some(int64(10)),
		Memo:             domain.Some("memo"),
		Key:              domain.Some("k1"),
	}))
	h.file(mutation(domain.TypeEntity, accountKey, 150, &domain.EntityFields{Key: domain.Some("k2")}))

	versions := h.history(domain.TypeEntity, accountKey)
	require.Len(t, versions, 2)
	assertChain(t, versions)
	assert.Equal(t, int64(150), *versions[0].Upper)

	current := versions[1].Fields.(*domain.EntityFields)
	key, _ := current.Key.Get()
	memo, _ := current.Memo.Get()
	assert.Equal(t, "k2", key)
	assert.Equal(t, "memo", memo, "unobserved fields carry over from the persisted version")
}

func TestCommitKeepsOneCurrentVersionPerKey(t *testing.T) {
	h := newHarness(t, 3)
	ts := int64(0)
	for file := 0; file < 4; file++ {
		var ms []domain.Mutation
		for i := 0; i < 3; i++ {
			ts += 7
			for _, key := range []string{"0.0.1", "0.0.2", "0.0.3"} {
				ms = append(ms, mutation(domain.TypeEntity, key, ts, &domain.EntityFields{Memo: domain.Some(fmt.Sprint(ts))}))
			}
		}
		h.file(ms...)
	}

	assert.Equal(t, int64(3), h.count(domain.TypeEntity))
	for _, key := range []string{"0.0.1", "0.0.2", "0.0.3"} {
		versions := h.history(domain.TypeEntity, key)
		assert.Len(t, versions, 12)
		assertChain(t, versions)
	}
}

func TestCommitAccumulatesTokenSupply(t *testing.T) {
	h := newHarness(t, 100)
	h.file(mutation(domain.TypeToken, tokenKey, 5, &domain.TokenFields{
		CreatedTimestamp: domain.Some(int64(5)),
		Name:             domain.Some("token"),
		TotalSupply:      domain.Some(int64(100)),
	}))
	h.file(
		mutation(domain.TypeToken, tokenKey, 110, &domain.TokenFields{TotalSupply: domain.Some(int64(-10))}),
		mutation(domain.TypeToken, tokenKey, 120, &domain.TokenFields{TotalSupply: domain.Some(int64(-15))}),
	)

	current, err := h.store.Current(context.Background(), domain.TypeToken, tokenKey)
	require.NoError(t, err)
	supply, _ := current.Fields.(*domain.TokenFields).TotalSupply.Get()
	assert.Equal(t, int64(75), supply)

	versions := h.history(domain.TypeToken, tokenKey)
	assertChain(t, versions)
	mid, _ := versions[1].Fields.(*domain.TokenFields).TotalSupply.Get()
	assert.Equal(t, int64(90), mid)
}

func TestCommitDropsStatusWithoutAssociation(t *testing.T) {
	h := newHarness(t, 100)
	res := h.file(mutation(domain.TypeTokenAccount, assocKey, 5, &domain.TokenAccountFields{
		FreezeStatus: domain.Some(domain.FreezeFrozen),
	}))

	assert.Equal(t, 1, res.Dropped)
	assert.Zero(t, h.count(domain.TypeTokenAccount))
	latest, err := h.store.LatestRecordFile(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest, "record file is committed even when every mutation is dropped")
}

func TestCommitAppliesStatusToPersistedAssociation(t *testing.T) {
	h := newHarness(t, 100)
	h.file(
		mutation(domain.TypeToken, tokenKey, 1, &domain.TokenFields{
			CreatedTimestamp: domain.Some(int64(1)),
			FreezeKey:        domain.Some("fk"),
			FreezeDefault:    domain.Some(false),
		}),
		mutation(domain.TypeTokenAccount, assocKey, 2, &domain.TokenAccountFields{
			Associated:       domain.Some(true),
			CreatedTimestamp: domain.Some(int64(2)),
		}),
	)
	res := h.file(mutation(domain.TypeTokenAccount, assocKey, 150, &domain.TokenAccountFields{
		FreezeStatus: domain.Some(domain.FreezeFrozen),
	}))
	assert.Zero(t, res.Dropped)

	versions := h.history(domain.TypeTokenAccount, assocKey)
	require.Len(t, versions, 2)
	assertChain(t, versions)
	before, _ := versions[0].Fields.(*domain.TokenAccountFields).FreezeStatus.Get()
	after, _ := versions[1].Fields.(*domain.TokenAccountFields).FreezeStatus.Get()
	assert.Equal(t, domain.FreezeUnfrozen, before)
	assert.Equal(t, domain.FreezeFrozen, after)
}

func TestCommitAssociationDefaults(t *testing.T) {
	token := &domain.TokenFields{
		CreatedTimestamp: domain.Some(int64(1)),
		FreezeKey:        domain.Some("fk"),
		FreezeDefault:    domain.Some(true),
		KycKey:           domain.Some("kk"),
	}
	association := &domain.TokenAccountFields{
		Associated:       domain.Some(true),
		CreatedTimestamp: domain.Some(int64(1)),
	}

	tests := []struct {
		name  string
		files [][]domain.Mutation
	}{
		{
			name: "token in same file and timestamp",
			files: [][]domain.Mutation{{
				mutation(domain.TypeToken, tokenKey, 1, token),
				mutation(domain.TypeTokenAccount, assocKey, 1, association),
			}},
		},
		{
			name: "token persisted earlier",
			files: [][]domain.Mutation{
				{mutation(domain.TypeToken, tokenKey, 1, token)},
				{mutation(domain.TypeTokenAccount, assocKey, 200, association)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 100)
			for _, ms := range tt.files {
				h.file(ms...)
			}
			current, err := h.store.Current(context.Background(), domain.TypeTokenAccount, assocKey)
			require.NoError(t, err)
			f := current.Fields.(*domain.TokenAccountFields)
			freeze, _ := f.FreezeStatus.Get()
			kyc, _ := f.KycStatus.Get()
			assert.Equal(t, domain.FreezeFrozen, freeze)
			assert.Equal(t, domain.KycRevoked, kyc)
		})
	}
}

func TestCommitDropsAssociationWithoutToken(t *testing.T) {
	h := newHarness(t, 100)
	res := h.file(
		mutation(domain.TypeTokenAccount, assocKey, 3, &domain.TokenAccountFields{
			Associated:       domain.Some(true),
			CreatedTimestamp: domain.Some(int64(3)),
		}),
		mutation(domain.TypeTokenAccount, assocKey, 4, &domain.TokenAccountFields{
			KycStatus: domain.Some(domain.KycGranted),
		}),
	)

	assert.Positive(t, res.Dropped)
	assert.Zero(t, h.count(domain.TypeTokenAccount))
}

func TestCommitNftMintAndTransferInEitherOrder(t *testing.T) {
	mint := mutation(domain.TypeNft, tokenKey+"/1", 7, &domain.NftFields{
		CreatedTimestamp: domain.Some(int64(7)),
		Deleted:          domain.Some(false),
		Metadata:         domain.Some("meta"),
	})
	transfer := mutation(domain.TypeNft, tokenKey+"/1", 7, &domain.NftFields{
		AccountID: domain.Some(domain.MustEntityID(0, 0, 9)),
	})

	var results []domain.VersionedRecord
	for _, order := range [][]domain.Mutation{{mint, transfer}, {transfer, mint}} {
		h := newHarness(t, 100)
		h.file(order...)
		current, err := h.store.Current(context.Background(), domain.TypeNft, tokenKey+"/1")
		require.NoError(t, err)
		results = append(results, current)
	}
	assert.Equal(t, results[0], results[1])
}

func TestCommitSkipsTokenAccountVersionsBeforeAssociation(t *testing.T) {
	h := newHarness(t, 100)
	h.file(mutation(domain.TypeToken, tokenKey, 1, &domain.TokenFields{CreatedTimestamp: domain.Some(int64(1))}))

	res := h.file(
		mutation(domain.TypeTokenAccount, assocKey, 113, &domain.TokenAccountFields{Associated: domain.Some(false)}),
		mutation(domain.TypeTokenAccount, assocKey, 115, &domain.TokenAccountFields{
			Associated:       domain.Some(true),
			CreatedTimestamp: domain.Some(int64(115)),
		}),
	)
	assert.Equal(t, 1, res.Dropped)
	assert.Zero(t, res.HistoryRows)

	versions := h.history(domain.TypeTokenAccount, assocKey)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(115), versions[0].Lower)
	assert.Nil(t, versions[0].Upper)
	associated, _ := versions[0].Fields.(*domain.TokenAccountFields).Associated.Get()
	assert.True(t, associated)
}

func TestCommitSkipsNftVersionsBeforeMint(t *testing.T) {
	h := newHarness(t, 100)
	key := tokenKey + "/4"
	res := h.file(
		mutation(domain.TypeNft, key, 2, &domain.NftFields{AccountID: domain.Some(domain.MustEntityID(0, 0, 9))}),
		mutation(domain.TypeNft, key, 3, &domain.NftFields{
			CreatedTimestamp: domain.Some(int64(3)),
			AccountID:        domain.Some(domain.MustEntityID(0, 0, 8)),
		}),
	)
	assert.Equal(t, 1, res.Dropped)

	versions := h.history(domain.TypeNft, key)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(3), versions[0].Lower)
	owner, _ := versions[0].Fields.(*domain.NftFields).AccountID.Get()
	assert.Equal(t, domain.MustEntityID(0, 0, 8), owner)
}

func TestCommitDropsNftWithoutMint(t *testing.T) {
	h := newHarness(t, 100)
	res := h.file(mutation(domain.TypeNft, tokenKey+"/2", 7, &domain.NftFields{
		AccountID: domain.Some(domain.MustEntityID(0, 0, 9)),
	}))
	assert.Equal(t, 1, res.Dropped)
	assert.Zero(t, h.count(domain.TypeNft))
}

func TestCommitNftBurnAfterPersistedMint(t *testing.T) {
	h := newHarness(t, 100)
	key := tokenKey + "/3"
	h.file(mutation(domain.TypeNft, key, 7, &domain.NftFields{
		CreatedTimestamp: domain.Some(int64(7)),
		AccountID:        domain.Some(domain.MustEntityID(0, 0, 9)),
		Deleted:          domain.Some(false),
	}))
	h.file(mutation(domain.TypeNft, key, 170, &domain.NftFields{
		AccountID: domain.Null[domain.EntityID](),
		Deleted:   domain.Some(true),
	}))

	current, err := h.store.Current(context.Background(), domain.TypeNft, key)
	require.NoError(t, err)
	f := current.Fields.(*domain.NftFields)
	assert.True(t, f.AccountID.IsNull())
	deleted, _ := f.Deleted.Get()
	assert.True(t, deleted)
}

func TestCommitScheduleExecutedWithoutCreate(t *testing.T) {
	h := newHarness(t, 100)
	h.file(mutation(domain.TypeSchedule, "0.0.300", 9, &domain.ScheduleFields{
		ExecutedTimestamp: domain.Some(int64(9)),
	}))

	current, err := h.store.Current(context.Background(), domain.TypeSchedule, "0.0.300")
	require.NoError(t, err)
	executed, _ := current.Fields.(*domain.ScheduleFields).ExecutedTimestamp.Get()
	assert.Equal(t, int64(9), executed)
}

func TestCommitNilRecordFileWritesNothing(t *testing.T) {
	h := newHarness(t, 100)
	b := h.stage(mutation(domain.TypeEntity, accountKey, 1, &domain.EntityFields{Memo: domain.Some("x")}))

	res, err := h.committer.Commit(context.Background(), b, nil)
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Zero(t, h.count(domain.TypeEntity))
	latest, err := h.store.LatestRecordFile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

var errInjected = errors.New("injected write failure")

type failingStore struct {
	*storage.Store
	failKey        string
	failRecordFile bool
}

func (f failingStore) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := f.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failKey: f.failKey, failRecordFile: f.failRecordFile}, nil
}

// failingTx writes every row before failKey and then fails. With
// failRecordFile set it fails the final record file insert instead.
type failingTx struct {
	storage.Tx
	failKey        string
	failRecordFile bool
}

func (f *failingTx) InsertRecordFile(ctx context.Context, rf domain.RecordFile, batchID string) error {
	if f.failRecordFile {
		return errInjected
	}
	return f.Tx.InsertRecordFile(ctx, rf, batchID)
}

func (f *failingTx) UpsertCurrent(ctx context.Context, t domain.EntityType, records []domain.VersionedRecord) error {
	for i, r := range records {
		if r.Key == f.failKey {
			if err := f.Tx.UpsertCurrent(ctx, t, records[:i]); err != nil {
				return err
			}
			return errInjected
		}
	}
	return f.Tx.UpsertCurrent(ctx, t, records)
}

func TestCommitIsAtomic(t *testing.T) {
	h := newHarness(t, 100)
	committer := NewCommitter(failingStore{Store: h.store, failKey: "0.0.2"}, h.registry, nil, nil)

	b := h.stage(
		mutation(domain.TypeEntity, "0.0.1", 1, &domain.EntityFields{Memo: domain.Some("a")}),
		mutation(domain.TypeEntity, "0.0.2", 1, &domain.EntityFields{Memo: domain.Some("b")}),
	)
	_, err := committer.Commit(context.Background(), b, h.nextRecordFile())
	require.ErrorIs(t, err, errInjected)

	assert.Zero(t, h.count(domain.TypeEntity))
	_, err = h.store.Current(context.Background(), domain.TypeEntity, "0.0.1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	latest, err := h.store.LatestRecordFile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func transferEvents(ts int64, payer, receiver domain.EntityID, amount int64) []domain.Event {
	return []domain.Event{
		{Type: domain.EventTransaction, ConsensusTimestamp: ts, PayerAccountID: payer,
			Payload: &domain.TransactionPayload{Type: 14, Result: 22, ChargedTxFee: 5}},
		{Type: domain.EventCryptoTransfer, ConsensusTimestamp: ts, PayerAccountID: payer,
			Payload: &domain.CryptoTransferPayload{EntityID: payer, Amount: -amount}},
		{Type: domain.EventCryptoTransfer, ConsensusTimestamp: ts, PayerAccountID: payer,
			Payload: &domain.CryptoTransferPayload{EntityID: receiver, Amount: amount}},
	}
}

func TestCommitWritesEventsWithRecordFile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)
	payer := domain.MustEntityID(0, 0, 2)
	receiver := domain.MustEntityID(0, 0, 5)

	b := h.stage(mutation(domain.TypeEntity, accountKey, 101, &domain.EntityFields{Memo: domain.Some("funded")}))
	for _, e := range transferEvents(101, payer, receiver, 40) {
		require.NoError(t, b.Append(e))
	}
	mint := domain.Event{Type: domain.EventNftTransfer, ConsensusTimestamp: 102, PayerAccountID: payer,
		Payload: &domain.NftTransferPayload{TokenID: domain.MustEntityID(0, 0, 100), SerialNumber: 1, ReceiverAccountID: &receiver}}
	require.NoError(t, b.Append(mint))

	res, err := h.committer.Commit(ctx, b, h.nextRecordFile())
	require.NoError(t, err)
	assert.Equal(t, 4, res.EventRows)
	assert.Equal(t, 1, res.CurrentRows)

	txs, err := h.store.Events(ctx, domain.EventTransaction, 100, 200)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, payer, txs[0].PayerAccountID)

	transfers, err := h.store.Events(ctx, domain.EventCryptoTransfer, 100, 200)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	var sum int64
	for _, e := range transfers {
		sum += e.Payload.(*domain.CryptoTransferPayload).Amount
	}
	assert.Zero(t, sum)

	nfts, err := h.store.Events(ctx, domain.EventNftTransfer, 100, 200)
	require.NoError(t, err)
	require.Len(t, nfts, 1)
	assert.Equal(t, int64(102), nfts[0].ConsensusTimestamp)
}

func TestCommitRollsBackEventsWithEntities(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 100)
	committer := NewCommitter(failingStore{Store: h.store, failRecordFile: true}, h.registry, nil, nil)
	payer := domain.MustEntityID(0, 0, 2)
	receiver := domain.MustEntityID(0, 0, 5)

	b := h.stage(
		mutation(domain.TypeEntity, accountKey, 1, &domain.EntityFields{Memo: domain.Some("a")}),
		mutation(domain.TypeNft, tokenKey+"/1", 1, &domain.NftFields{AccountID: domain.Some(receiver), CreatedTimestamp: domain.Some(int64(1))}),
	)
	for _, e := range transferEvents(1, payer, receiver, 10) {
		require.NoError(t, b.Append(e))
	}
	require.NoError(t, b.Append(domain.Event{Type: domain.EventNftTransfer, ConsensusTimestamp: 1, PayerAccountID: payer,
		Payload: &domain.NftTransferPayload{TokenID: domain.MustEntityID(0, 0, 100), SerialNumber: 1, ReceiverAccountID: &receiver}}))

	_, err := committer.Commit(ctx, b, h.nextRecordFile())
	require.ErrorIs(t, err, errInjected)

	assert.Zero(t, h.count(domain.TypeEntity))
	assert.Zero(t, h.count(domain.TypeNft))
	for _, typ := range domain.EventTypes() {
		events, err := h.store.Events(ctx, typ, 0, 1000)
		require.NoError(t, err)
		assert.Empty(t, events, typ)
	}
	latest, err := h.store.LatestRecordFile(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestCommitRejectsCheckpointViolations(t *testing.T) {
	h := newHarness(t, 100)
	h.file(mutation(domain.TypeEntity, accountKey, 1, &domain.EntityFields{Memo: domain.Some("a")}))

	tests := []struct {
		name string
		rf   domain.RecordFile
	}{
		{"index does not advance", domain.RecordFile{Index: 1, Name: "dup", Hash: "x"}},
		{"previous hash mismatch", domain.RecordFile{Index: 2, Name: "fork", Hash: "x", PrevHash: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := h.stage(mutation(domain.TypeEntity, accountKey, 50, &domain.EntityFields{Memo: domain.Some("b")}))
			rf := tt.rf
			_, err := h.committer.Commit(context.Background(), b, &rf)
			assert.ErrorIs(t, err, storage.ErrCheckpoint)
			assert.True(t, IsFatal(err))
		})
	}
	assert.Len(t, h.history(domain.TypeEntity, accountKey), 1)
}

func TestCommitRejectsFailedBatch(t *testing.T) {
	h := newHarness(t, 100)
	b := batch.New(h.registry)
	err := b.Apply(mutation(domain.TypeEntity, "bad", 1, &domain.EntityFields{}))
	require.ErrorIs(t, err, domain.ErrStructural)

	_, err = h.committer.Commit(context.Background(), b, h.nextRecordFile())
	assert.ErrorIs(t, err, domain.ErrStructural)
	latest, lerr := h.store.LatestRecordFile(context.Background())
	require.NoError(t, lerr)
	assert.Nil(t, latest)
}

func TestCommitFlushesInChunks(t *testing.T) {
	h := newHarness(t, 2)
	var ms []domain.Mutation
	for i := 1; i <= 7; i++ {
		key := fmt.Sprintf("0.0.%d", i)
		ms = append(ms,
			mutation(domain.TypeEntity, key, 1, &domain.EntityFields{Memo: domain.Some("v1")}),
			mutation(domain.TypeEntity, key, 2, &domain.EntityFields{Memo: domain.Some("v2")}),
		)
	}
	res := h.file(ms...)
	assert.Equal(t, 7, res.CurrentRows)
	assert.Equal(t, 7, res.HistoryRows)
	assert.Equal(t, int64(7), h.count(domain.TypeEntity))
}

func TestCommitStaleMutationFoldsIntoCurrent(t *testing.T) {
	h := newHarness(t, 100)
	h.file(mutation(domain.TypeEntity, accountKey, 50, &domain.EntityFields{Memo: domain.Some("m")}))
	h.file(mutation(domain.TypeEntity, accountKey, 40, &domain.EntityFields{Key: domain.Some("late")}))

	versions := h.history(domain.TypeEntity, accountKey)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(50), versions[0].Lower)
	key, _ := versions[0].Fields.(*domain.EntityFields).Key.Get()
	assert.Equal(t, "late", key)
}
