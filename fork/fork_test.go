package fork

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhard-dashboard/chain"
	"workhard-dashboard/chaintest"
	"workhard-dashboard/command"
	"workhard-dashboard/security"
	"workhard-dashboard/wallet"
)

type memStore struct {
	files map[string][]byte
	err   error
}

func (m *memStore) AddBytes(_ context.Context, name string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	cid := fmt.Sprintf("bafy%d", len(m.files))
	m.files[cid] = append([]byte(nil), data...)
	return cid, nil
}

func (m *memStore) Cat(_ context.Context, cid string) ([]byte, error) {
	data, ok := m.files[strings.TrimPrefix(cid, "ipfs://")]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestReadMetadataRoundTripsPublish(t *testing.T) {
	store := &memStore{}
	uri, err := NewPublisher(store, nil).Publish(context.Background(), ProjectInput{
		Name:        " Workhard ",
		Description: "jobs",
		ImageName:   "logo.png",
		Image:       []byte{0x89, 'P', 'N', 'G'},
	})
	require.NoError(t, err)

	meta, err := ReadMetadata(context.Background(), store, uri)
	require.NoError(t, err)
	assert.Equal(t, &Metadata{Name: "Workhard", Description: "jobs", Image: "ipfs://bafy0"}, meta)

	_, err = ReadMetadata(context.Background(), store, "https://example.com/meta.json")
	assert.ErrorIs(t, err, ErrNotContentAddressed)
	_, err = ReadMetadata(context.Background(), store, "ipfs://absent")
	assert.Error(t, err)

	store.files["bad"] = []byte("not json")
	_, err = ReadMetadata(context.Background(), store, "ipfs://bad")
	assert.ErrorContains(t, err, "decode metadata")
}

func TestParseRoute(t *testing.T) {
	cases := []struct {
		path string
		want Route
	}{
		{"/fork", Route{Step: StepNew}},
		{"fork/new", Route{Step: StepNew}},
		{"/fork/upgrade/3", Route{Step: StepUpgrade, ProjectID: big.NewInt(3)}},
		{"/fork/launch/12/", Route{Step: StepLaunch, ProjectID: big.NewInt(12)}},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			got, err := ParseRoute(tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseRoute("/fork/deploy")
	require.ErrorIs(t, err, ErrUnknownStep)
	_, err = ParseRoute("/fork/upgrade")
	require.ErrorIs(t, err, ErrMissingProject)
	_, err = ParseRoute("/fork/launch/abc")
	require.ErrorIs(t, err, ErrMissingProject)

	assert.Equal(t, "/fork/upgrade/3", Route{Step: StepUpgrade, ProjectID: big.NewInt(3)}.Path())
	assert.Equal(t, "/fork", Route{Step: StepDone}.Path())
}

func TestPublishUploadsImageThenMetadata(t *testing.T) {
	store := &memStore{}
	uri, err := NewPublisher(store, nil).Publish(context.Background(), ProjectInput{
		Name:        " Fork DAO ",
		Description: "commit mining",
		ImageName:   "logo.png",
		Image:       []byte{0x89, 'P', 'N', 'G'},
	})
	require.NoError(t, err)
	assert.Equal(t, "ipfs://bafy1", uri)

	var meta Metadata
	require.NoError(t, json.Unmarshal(store.files["bafy1"], &meta))
	assert.Equal(t, Metadata{Name: "Fork DAO", Description: "commit mining", Image: "ipfs://bafy0"}, meta)
}

func TestPublishRejectsIncompleteInput(t *testing.T) {
	p := NewPublisher(&memStore{}, nil)
	_, err := p.Publish(context.Background(), ProjectInput{Name: "x"})
	require.ErrorIs(t, err, ErrMissingMetadata)

	_, err = p.Publish(context.Background(), ProjectInput{Name: "x", ImageName: "../run.sh", Image: []byte{1}})
	var unsupported security.ErrUnsupportedImage
	require.ErrorAs(t, err, &unsupported)

	p = NewPublisher(&memStore{err: errors.New("node offline")}, nil)
	_, err = p.Publish(context.Background(), ProjectInput{Name: "x", Image: []byte{1}})
	require.ErrorContains(t, err, "node offline")
}

func TestWizardWalksAllSteps(t *testing.T) {
	c := chaintest.New(1_700_000_000)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	runner := command.NewRunner(wallet.New(key, 31337), c)
	contracts := c.Contracts()
	w := NewWizard(runner, contracts, NewPublisher(&memStore{}, nil))
	ctx := context.Background()

	created, err := w.Create(ctx, ProjectInput{Name: "Fork", Image: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), created.ProjectID.Int64())
	assert.Equal(t, "/fork/upgrade/0", created.Next.Path())

	uri, err := contracts.Project.TokenURI(ctx, created.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, created.MetaURI, uri)

	upgraded, err := w.Upgrade(ctx, created.ProjectID, "Fork DAO", "FORK")
	require.NoError(t, err)
	assert.Equal(t, StepLaunch, upgraded.Next.Step)

	launched, err := w.Launch(ctx, created.ProjectID, chain.LaunchParams{})
	require.NoError(t, err)
	assert.Equal(t, StepDone, launched.Next.Step)

	approved, err := contracts.JobBoard.Approved(ctx, created.ProjectID)
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, []string{"create", "upgradeToDAO", "launch"}, c.Sent())
}

func TestWizardWithoutStoreOrSigner(t *testing.T) {
	c := chaintest.New(0)
	runner := command.NewRunner(wallet.NewWatch(common.HexToAddress("0x01")), c)

	_, err := NewWizard(runner, c.Contracts(), nil).Create(context.Background(), ProjectInput{Name: "x", Image: []byte{1}})
	require.Error(t, err)

	_, err = NewWizard(runner, c.Contracts(), NewPublisher(&memStore{}, nil)).Upgrade(context.Background(), big.NewInt(0), "a", "b")
	n, ok := command.AsNotice(err)
	require.True(t, ok)
	assert.Equal(t, command.MsgNotConnected, n.Message)
	assert.Empty(t, c.Sent())
}
