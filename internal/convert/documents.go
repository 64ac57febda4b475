package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/octant-daoip5/internal/caip10"
	"github.com/yourorg/octant-daoip5/internal/epoch"
	"github.com/yourorg/octant-daoip5/internal/model"
)

// schemaContext is the DAOIP-5 JSON-LD context every document declares.
const schemaContext = "http://www.daostar.org/schemas"

// RateSource resolves USD rates for epochs and the present moment. Satisfied
// by rates.Cache.
type RateSource interface {
	RateForEpoch(ctx context.Context, epochNum int) (float64, bool)
	CurrentRate(ctx context.Context) (float64, bool)
	Snapshot() map[int]float64
}

// FundsEntry is one amount in fundsAsked/fundsApproved/totalGrantPoolSize.
// Type discriminates matched funding; the plain allocated entry omits it.
type FundsEntry struct {
	Amount       string `json:"amount"`
	Denomination string `json:"denomination"`
	Type         string `json:"type,omitempty"`
}

// PayoutValue references a committed merkle distribution.
type PayoutValue struct {
	Amount     string `json:"amount"`
	MerkleRoot string `json:"merkleRoot"`
	Recipient  string `json:"recipient"`
}

// Payout is one on-chain payout proof for an application.
type Payout struct {
	Type  string      `json:"type"`
	Value PayoutValue `json:"value"`
	Proof string      `json:"proof"`
}

// Application is a canonical DAOIP-5 grant application.
type Application struct {
	Type               string       `json:"type"`
	ID                 string       `json:"id"`
	GrantPoolID        string       `json:"grantPoolId"`
	GrantPoolName      string       `json:"grantPoolName"`
	ProjectID          string       `json:"projectId"`
	ProjectName        string       `json:"projectName"`
	CreatedAt          string       `json:"createdAt"`
	FundsAsked         []FundsEntry `json:"fundsAsked"`
	FundsApproved      []FundsEntry `json:"fundsApproved"`
	FundsApprovedInUSD string       `json:"fundsApprovedInUSD"`
	Status             string       `json:"status"`
	Payouts            []Payout     `json:"payouts"`
}

// SyncStatus describes how far the backend indexer lags the chain.
type SyncStatus struct {
	CurrentEpochOnChain *int  `json:"current_epoch_on_chain,omitempty"`
	LastIndexedEpoch    *int  `json:"last_indexed_epoch,omitempty"`
	IndexingLag         *int  `json:"indexing_lag,omitempty"`
	IsFullySynced       *bool `json:"is_fully_synced,omitempty"`
}

// BackendVersion identifies the upstream deployment the data came from.
type BackendVersion struct {
	DeploymentID string `json:"deployment_id"`
	Environment  string `json:"environment"`
	Chain        string `json:"chain"`
}

// ChainMeta identifies the chain the addresses belong to.
type ChainMeta struct {
	ChainID   json.Number `json:"chain_id"`
	ChainName string      `json:"chain_name"`
}

// RateInfo records which exchange rates backed the USD figures.
type RateInfo struct {
	CurrentETHUSDRate      *float64        `json:"current_eth_usd_rate"`
	RateFetchedAt          string          `json:"rate_fetched_at"`
	RateSource             string          `json:"rate_source"`
	HistoricalRatesByEpoch map[int]float64 `json:"historical_rates_by_epoch,omitempty"`
}

// DataCompleteness summarizes which upstream signals backed a completed
// applications document.
type DataCompleteness struct {
	HasAllocations               bool `json:"has_allocations"`
	HasRewards                   bool `json:"has_rewards"`
	HasMerkleTree                bool `json:"has_merkle_tree"`
	TotalProjectsWithAllocations int  `json:"total_projects_with_allocations"`
}

// Metadata is the `_metadata` freshness block attached to every document.
// The counter fields are document-specific and omitted elsewhere.
type Metadata struct {
	DataFetchedAt  string          `json:"data_fetched_at"`
	APIEndpoint    string          `json:"api_endpoint"`
	SyncStatus     SyncStatus      `json:"sync_status"`
	BackendVersion *BackendVersion `json:"backend_version,omitempty"`
	ChainInfo      *ChainMeta      `json:"chain_info,omitempty"`
	ExchangeRates  *RateInfo       `json:"exchange_rates,omitempty"`
	RunID          string          `json:"run_id"`

	EpochsProcessed                 []int             `json:"epochs_processed,omitempty"`
	TotalGrantPools                 *int              `json:"total_grant_pools,omitempty"`
	TotalProjects                   *int              `json:"total_projects,omitempty"`
	TotalProjectEpochParticipations *int              `json:"total_project_epoch_participations,omitempty"`
	EpochProcessed                  *int              `json:"epoch_processed,omitempty"`
	EpochConclusionStatus           epoch.State       `json:"epoch_conclusion_status,omitempty"`
	DataCompleteness                *DataCompleteness `json:"data_completeness,omitempty"`
}

// SystemDocument is the grants-system identity document.
type SystemDocument struct {
	Context       string       `json:"@context"`
	Name          string       `json:"name"`
	Type          string       `json:"type"`
	Description   string       `json:"description"`
	GrantPoolsURI string       `json:"grantPoolsURI"`
	Website       string       `json:"website"`
	Documentation string       `json:"documentation"`
	ChainID       *json.Number `json:"chainId,omitempty"`
	ChainName     string       `json:"chainName,omitempty"`
	Version       string       `json:"version,omitempty"`
	Environment   string       `json:"environment,omitempty"`
	Metadata      *Metadata    `json:"_metadata"`
}

// EpochMetadata passes the epoch's financial summary through to consumers.
type EpochMetadata struct {
	StakingProceeds          *string `json:"stakingProceeds"`
	TotalEffectiveDeposit    *string `json:"totalEffectiveDeposit"`
	VanillaIndividualRewards *string `json:"vanillaIndividualRewards"`
	OperationalCost          *string `json:"operationalCost"`
	MatchedRewards           *string `json:"matchedRewards"`
	PatronsRewards           *string `json:"patronsRewards"`
	TotalWithdrawals         *string `json:"totalWithdrawals"`
	Leftover                 *string `json:"leftover"`
	PPF                      *string `json:"ppf"`
	CommunityFund            *string `json:"communityFund"`
}

// GrantPool is one funding epoch rendered as a DAOIP-5 grant pool.
type GrantPool struct {
	Type                  string        `json:"type"`
	ID                    string        `json:"id"`
	Name                  string        `json:"name"`
	Description           string        `json:"description"`
	GrantFundingMechanism string        `json:"grantFundingMechanism"`
	IsOpen                bool          `json:"isOpen"`
	CloseDate             string        `json:"closeDate"`
	ApplicationsURI       string        `json:"applicationsURI"`
	GovernanceURI         string        `json:"governanceURI"`
	TotalGrantPoolSize    []FundsEntry  `json:"totalGrantPoolSize"`
	EpochMetadata         EpochMetadata `json:"epochMetadata"`
}

// PoolsDocument is the grant_pools.json body.
type PoolsDocument struct {
	Context    string      `json:"@context"`
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	GrantPools []GrantPool `json:"grantPools"`
	Metadata   *Metadata   `json:"_metadata"`
}

// Project is one registry entry in projects.json.
type Project struct {
	Type                string   `json:"type"`
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	ContentURI          *string  `json:"contentURI"`
	RelevantTo          []string `json:"relevantTo"`
	ParticipatingEpochs []int    `json:"participatingEpochs"`
}

// ProjectsDocument is the projects.json body.
type ProjectsDocument struct {
	Context  string    `json:"@context"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Projects []Project `json:"projects"`
	Metadata *Metadata `json:"_metadata"`
}

// ApplicationPool wraps an epoch's applications together with the resolved
// conclusion state and the upstream presence flags, so consumers can tell
// "nothing happened yet" from "data error".
type ApplicationPool struct {
	Type              string        `json:"type"`
	Name              string        `json:"name"`
	Applications      []Application `json:"applications"`
	Note              string        `json:"_note,omitempty"`
	EpochConcluded    *bool         `json:"_epoch_concluded,omitempty"`
	EpochStatus       epoch.State   `json:"_epoch_status"`
	TotalApplications *int          `json:"_total_applications,omitempty"`
	HasAllocations    bool          `json:"_has_allocations"`
	HasRewards        bool          `json:"_has_rewards"`
	HasMerkleTree     bool          `json:"_has_merkle_tree"`
}

// ApplicationsDocument is the applications_epoch_<n>.json body.
type ApplicationsDocument struct {
	Context    string            `json:"@context"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	GrantPools []ApplicationPool `json:"grantPools"`
	Metadata   *Metadata         `json:"_metadata"`
}

// Builder assembles DAOIP-5 documents from fetched upstream data. One Builder
// is created per run; it owns the run id and the system-level metadata loaded
// at startup.
type Builder struct {
	baseURL string
	runID   string
	rates   RateSource

	chain   *model.ChainInfo
	version *model.VersionInfo
	indexed *model.IndexedEpoch

	now func() time.Time
}

// NewBuilder creates a document builder for one run.
func NewBuilder(baseURL string, rateSource RateSource, chain *model.ChainInfo, version *model.VersionInfo, indexed *model.IndexedEpoch) *Builder {
	return &Builder{
		baseURL: baseURL,
		runID:   uuid.NewString(),
		rates:   rateSource,
		chain:   chain,
		version: version,
		indexed: indexed,
		now:     time.Now,
	}
}

// RunID identifies this conversion run in every document's metadata.
func (b *Builder) RunID() string { return b.runID }

// ChainID returns the chain id for identifier construction, defaulting to
// mainnet when chain metadata could not be loaded.
func (b *Builder) ChainID() string {
	if b.chain == nil || b.chain.ChainID.String() == "" {
		return caip10.DefaultChainID
	}
	return b.chain.ChainID.String()
}

// Freshness builds the `_metadata` block shared by all documents.
func (b *Builder) Freshness(ctx context.Context) *Metadata {
	now := b.now().UTC().Format(time.RFC3339)

	meta := &Metadata{
		DataFetchedAt: now,
		APIEndpoint:   b.baseURL,
		RunID:         b.runID,
	}

	if b.indexed != nil {
		current := b.indexed.CurrentEpoch
		indexed := b.indexed.IndexedEpoch
		lag := current - indexed
		synced := current == indexed
		meta.SyncStatus = SyncStatus{
			CurrentEpochOnChain: &current,
			LastIndexedEpoch:    &indexed,
			IndexingLag:         &lag,
			IsFullySynced:       &synced,
		}
	}

	if b.version != nil {
		meta.BackendVersion = &BackendVersion{
			DeploymentID: b.version.ID,
			Environment:  b.version.Env,
			Chain:        b.version.Chain,
		}
	}

	if b.chain != nil {
		meta.ChainInfo = &ChainMeta{
			ChainID:   b.chain.ChainID,
			ChainName: b.chain.ChainName,
		}
	}

	historical := b.rates.Snapshot()
	rateInfo := &RateInfo{
		RateFetchedAt: now,
		RateSource:    "CoinGecko API",
	}
	if rate, ok := b.rates.CurrentRate(ctx); ok {
		rateInfo.CurrentETHUSDRate = &rate
	}
	if len(historical) > 0 {
		rateInfo.HistoricalRatesByEpoch = historical
	}
	if rateInfo.CurrentETHUSDRate != nil || len(historical) > 0 {
		meta.ExchangeRates = rateInfo
	}

	return meta
}

// System builds the grants_system.json document.
func (b *Builder) System(ctx context.Context) *SystemDocument {
	doc := &SystemDocument{
		Context:       schemaContext,
		Name:          "Octant",
		Type:          "Foundation",
		Description:   "A decentralized grants platform using quadratic funding to support public goods",
		GrantPoolsURI: "./grant_pools.json",
		Website:       "https://octant.app",
		Documentation: "https://docs.octant.app",
		Metadata:      b.Freshness(ctx),
	}

	if b.chain != nil {
		id := b.chain.ChainID
		doc.ChainID = &id
		doc.ChainName = b.chain.ChainName
	}
	if b.version != nil {
		doc.Version = b.version.ID
		doc.Environment = b.version.Env
	}

	return doc
}

// GrantPool renders one epoch as a grant pool.
func (b *Builder) GrantPool(epochNum int, info *model.EpochInfo, status *model.EpochStatus) GrantPool {
	_, end := epoch.Window(epochNum)

	totalRewards := "0"
	if info.TotalRewards != nil {
		totalRewards = *info.TotalRewards
	}

	return GrantPool{
		Type:                  "GrantPool",
		ID:                    caip10.PoolID(b.ChainID(), epochNum),
		Name:                  fmt.Sprintf("Octant Epoch %d", epochNum),
		Description:           fmt.Sprintf("Quadratic funding round for Octant epoch %d - 90-day funding period supporting Ethereum public goods", epochNum),
		GrantFundingMechanism: "Quadratic Funding",
		IsOpen:                status.IsCurrent,
		CloseDate:             end.Format(time.RFC3339),
		ApplicationsURI:       fmt.Sprintf("./applications_epoch_%d.json", epochNum),
		GovernanceURI:         "https://docs.octant.app/how-it-works/mechanism",
		TotalGrantPoolSize: []FundsEntry{
			{Amount: totalRewards, Denomination: "ETH"},
		},
		EpochMetadata: EpochMetadata{
			StakingProceeds:          info.StakingProceeds,
			TotalEffectiveDeposit:    info.TotalEffectiveDeposit,
			VanillaIndividualRewards: info.VanillaIndividualRewards,
			OperationalCost:          info.OperationalCost,
			MatchedRewards:           info.MatchedRewards,
			PatronsRewards:           info.PatronsRewards,
			TotalWithdrawals:         info.TotalWithdrawals,
			Leftover:                 info.Leftover,
			PPF:                      info.PPF,
			CommunityFund:            info.CommunityFund,
		},
	}
}

// Pools wraps rendered grant pools into the grant_pools.json document.
func (b *Builder) Pools(ctx context.Context, epochs []int, pools []GrantPool) *PoolsDocument {
	meta := b.Freshness(ctx)
	meta.EpochsProcessed = epochs
	total := len(pools)
	meta.TotalGrantPools = &total

	return &PoolsDocument{
		Context:    schemaContext,
		Name:       "Octant",
		Type:       "Foundation",
		GrantPools: pools,
		Metadata:   meta,
	}
}

// ProjectAccumulator merges project sets across epochs, keeping the order in
// which addresses were first seen.
type ProjectAccumulator struct {
	order    []string
	projects map[string]*Project
}

// NewProjectAccumulator creates an empty accumulator.
func NewProjectAccumulator() *ProjectAccumulator {
	return &ProjectAccumulator{projects: make(map[string]*Project)}
}

// Add folds one epoch's project metadata into the registry.
func (a *ProjectAccumulator) Add(chainID string, epochNum int, meta *model.ProjectsMetadata, details *model.ProjectDetailsResponse) {
	detailMap := make(map[string]model.ProjectDetail)
	if details != nil {
		for _, d := range details.ProjectsDetails {
			detailMap[d.Address] = d
		}
	}

	epochLabel := fmt.Sprintf("Octant Epoch %d", epochNum)
	for _, address := range meta.ProjectsAddresses {
		if existing, ok := a.projects[address]; ok {
			existing.ParticipatingEpochs = append(existing.ParticipatingEpochs, epochNum)
			existing.RelevantTo = append(existing.RelevantTo, epochLabel)
			continue
		}

		name := shortProjectName(address)
		if d, ok := detailMap[address]; ok && d.Name != "" {
			name = d.Name
		}

		var contentURI *string
		if meta.ProjectsCid != "" {
			uri := "ipfs://" + meta.ProjectsCid
			contentURI = &uri
		}

		a.order = append(a.order, address)
		a.projects[address] = &Project{
			Type:                "Project",
			ID:                  caip10.ProjectID(chainID, address),
			Name:                name,
			Description:         "Public goods project participating in Octant quadratic funding",
			ContentURI:          contentURI,
			RelevantTo:          []string{epochLabel},
			ParticipatingEpochs: []int{epochNum},
		}
	}
}

// Projects wraps the accumulated registry into the projects.json document.
func (b *Builder) Projects(ctx context.Context, epochs []int, acc *ProjectAccumulator) *ProjectsDocument {
	projects := make([]Project, 0, len(acc.order))
	participations := 0
	for _, address := range acc.order {
		p := acc.projects[address]
		participations += len(p.ParticipatingEpochs)
		projects = append(projects, *p)
	}

	meta := b.Freshness(ctx)
	meta.EpochsProcessed = epochs
	total := len(projects)
	meta.TotalProjects = &total
	meta.TotalProjectEpochParticipations = &participations

	return &ProjectsDocument{
		Context:  schemaContext,
		Name:     "Octant Projects",
		Type:     "ProjectRegistry",
		Projects: projects,
		Metadata: meta,
	}
}

// Applications classifies an epoch and builds its applications document:
// canonical applications for a completed epoch, a placeholder pool carrying
// the conclusion state otherwise.
func (b *Builder) Applications(
	ctx context.Context,
	epochNum int,
	allocations *model.AllocationsResponse,
	rewards *model.RewardsResponse,
	merkle *model.MerkleTree,
) *ApplicationsDocument {
	hasAllocations := allocations != nil && len(allocations.Allocations) > 0
	hasRewards := rewards != nil
	hasMerkle := merkle != nil
	state := epoch.Resolve(hasAllocations, hasRewards, hasMerkle)
	poolName := fmt.Sprintf("Octant Epoch %d", epochNum)

	if !state.Concluded() {
		logrus.Infof("Epoch %d not concluded (%s)", epochNum, state)
		meta := b.Freshness(ctx)
		meta.EpochProcessed = &epochNum
		meta.EpochConclusionStatus = state

		return &ApplicationsDocument{
			Context: schemaContext,
			Name:    "Octant",
			Type:    "Foundation",
			GrantPools: []ApplicationPool{{
				Type:           "GrantPool",
				Name:           poolName,
				Applications:   []Application{},
				Note:           state.Note(),
				EpochStatus:    state,
				HasAllocations: hasAllocations,
				HasRewards:     hasRewards,
				HasMerkleTree:  hasMerkle,
			}},
			Metadata: meta,
		}
	}

	applications := b.buildApplications(ctx, epochNum, allocations.Allocations, rewards, merkle, b.now())

	concluded := true
	total := len(applications)
	meta := b.Freshness(ctx)
	meta.EpochProcessed = &epochNum
	meta.EpochConclusionStatus = state
	meta.DataCompleteness = &DataCompleteness{
		HasAllocations:               true,
		HasRewards:                   hasRewards,
		HasMerkleTree:                hasMerkle,
		TotalProjectsWithAllocations: total,
	}

	return &ApplicationsDocument{
		Context: schemaContext,
		Name:    "Octant",
		Type:    "Foundation",
		GrantPools: []ApplicationPool{{
			Type:              "GrantPool",
			Name:              poolName,
			Applications:      applications,
			EpochConcluded:    &concluded,
			EpochStatus:       state,
			TotalApplications: &total,
			HasAllocations:    true,
			HasRewards:        hasRewards,
			HasMerkleTree:     hasMerkle,
		}},
		Metadata: meta,
	}
}
