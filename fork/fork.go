// Package fork drives the three-step fork-and-launch flow: create a project
// NFT, upgrade it to a DAO, then set up emission and launch it.
package fork

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"path"
	"strings"

	"go.uber.org/zap"

	"workhard-dashboard/chain"
	"workhard-dashboard/command"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/ipfs"
	"workhard-dashboard/registry"
	"workhard-dashboard/security"
)

type Step string

const (
	StepNew     Step = "new"
	StepUpgrade Step = "upgrade"
	StepLaunch  Step = "launch"
	// StepDone is where a launched fork lands.
	StepDone Step = ""
)

var (
	ErrUnknownStep     = dao.Err("unknown fork step")
	ErrMissingProject  = dao.Err("fork step needs a project id")
	ErrMissingMetadata = dao.Err("project name and image are required")

	// ErrNotContentAddressed is returned for metadata URIs outside ipfs://.
	ErrNotContentAddressed = dao.Err("metadata uri is not content addressed")
)

// Route is the wizard position selected by the path, e.g. /fork/upgrade/3.
type Route struct {
	Step      Step     `json:"step"`
	ProjectID *big.Int `json:"project_id,omitempty"`
}

// Path renders the route back to its path form.
func (r Route) Path() string {
	if r.Step == StepDone {
		return "/fork"
	}
	if r.ProjectID == nil {
		return "/fork/" + string(r.Step)
	}
	return fmt.Sprintf("/fork/%s/%s", r.Step, r.ProjectID)
}

// ParseRoute reads /fork/{step}[/{projId}]. A bare /fork is the first step.
func ParseRoute(p string) (Route, error) {
	parts := strings.Split(strings.Trim(path.Clean("/"+p), "/"), "/")
	if len(parts) > 0 && parts[0] == "fork" {
		parts = parts[1:]
	}
	if len(parts) == 0 || parts[0] == "" {
		return Route{Step: StepNew}, nil
	}

	r := Route{Step: Step(parts[0])}
	switch r.Step {
	case StepNew:
		if len(parts) > 1 {
			return Route{}, fmt.Errorf("%w: %s", ErrUnknownStep, p)
		}
		return r, nil
	case StepUpgrade, StepLaunch:
	default:
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownStep, parts[0])
	}
	if len(parts) != 2 {
		return Route{}, ErrMissingProject
	}
	id, ok := new(big.Int).SetString(parts[1], 10)
	if !ok || id.Sign() < 0 {
		return Route{}, fmt.Errorf("%w: bad id %q", ErrMissingProject, parts[1])
	}
	r.ProjectID = id
	return r, nil
}

// Uploader stores content and returns its CID.
type Uploader interface {
	AddBytes(ctx context.Context, name string, data []byte) (string, error)
}

// Metadata is the ERC-721 metadata document the project NFT points at.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Fetcher reads content by CID.
type Fetcher interface {
	Cat(ctx context.Context, cid string) ([]byte, error)
}

// ReadMetadata fetches the metadata document a project NFT points at.
func ReadMetadata(ctx context.Context, f Fetcher, uri string) (*Metadata, error) {
	if !strings.HasPrefix(uri, ipfs.Scheme) {
		return nil, ErrNotContentAddressed
	}
	data, err := f.Cat(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}

// Publisher uploads project images and metadata.
type Publisher struct {
	store  Uploader
	logger *zap.Logger
}

func NewPublisher(store Uploader, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{store: store, logger: logger}
}

// ProjectInput is the first step's form.
type ProjectInput struct {
	Name        string
	Description string
	ImageName   string
	Image       []byte
}

// Publish uploads the image, then metadata referencing it, and returns the
// metadata URI.
func (p *Publisher) Publish(ctx context.Context, in ProjectInput) (string, error) {
	if strings.TrimSpace(in.Name) == "" || len(in.Image) == 0 {
		return "", ErrMissingMetadata
	}
	imageName := "image"
	if in.ImageName != "" {
		var err error
		if imageName, err = security.ImageName(in.ImageName); err != nil {
			return "", err
		}
	}
	imageCID, err := p.store.AddBytes(ctx, imageName, in.Image)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	meta, err := json.Marshal(Metadata{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Image:       ipfs.URI(imageCID),
	})
	if err != nil {
		return "", err
	}
	metaCID, err := p.store.AddBytes(ctx, "metadata.json", meta)
	if err != nil {
		return "", fmt.Errorf("upload metadata: %w", err)
	}
	p.logger.Info("project metadata published",
		zap.String("image", imageCID),
		zap.String("metadata", metaCID))
	return ipfs.URI(metaCID), nil
}

// Wizard runs each step as one command and returns where the flow goes next.
type Wizard struct {
	runner    *command.Runner
	contracts *registry.Contracts
	publisher *Publisher
}

func NewWizard(runner *command.Runner, contracts *registry.Contracts, publisher *Publisher) *Wizard {
	return &Wizard{runner: runner, contracts: contracts, publisher: publisher}
}

// Result is a completed step.
type Result struct {
	Completion *command.Completion `json:"completion"`
	ProjectID  *big.Int            `json:"project_id,omitempty"`
	MetaURI    string              `json:"metadata_uri,omitempty"`
	Next       Route               `json:"next"`
}

// Create publishes metadata and mints the project.
func (w *Wizard) Create(ctx context.Context, in ProjectInput) (*Result, error) {
	if w.publisher == nil {
		return nil, fmt.Errorf("fork: no content store configured")
	}
	uri, err := w.publisher.Publish(ctx, in)
	if err != nil {
		return nil, err
	}
	c, id, err := w.runner.CreateProject(ctx, w.contracts.Project, uri)
	if err != nil {
		return nil, err
	}
	return &Result{Completion: c, ProjectID: id, MetaURI: uri, Next: Route{Step: StepUpgrade, ProjectID: id}}, nil
}

// Upgrade turns the project into a DAO with its own governance token.
func (w *Wizard) Upgrade(ctx context.Context, id *big.Int, name, symbol string) (*Result, error) {
	c, err := w.runner.UpgradeToDAO(ctx, w.contracts.Workhard, id, name, symbol)
	if err != nil {
		return nil, err
	}
	return &Result{Completion: c, ProjectID: id, Next: Route{Step: StepLaunch, ProjectID: id}}, nil
}

func (w *Wizard) Launch(ctx context.Context, id *big.Int, params chain.LaunchParams) (*Result, error) {
	c, err := w.runner.Launch(ctx, w.contracts.Workhard, id, params)
	if err != nil {
		return nil, err
	}
	return &Result{Completion: c, ProjectID: id, Next: Route{Step: StepDone}}, nil
}
