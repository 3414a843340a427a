package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonaware/faas-scheduler/internal/scheduling"
	"github.com/carbonaware/faas-scheduler/internal/storage"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type memStore struct {
	objects map[string][]byte
	writes  []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Read(_ context.Context, key string, out any) error {
	data, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("%q: %w", key, storage.ErrNotFound)
	}
	return json.Unmarshal(data, out)
}

func (m *memStore) Write(_ context.Context, key string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	m.objects[key] = data
	m.writes = append(m.writes, key)
	return "mem://" + key, nil
}

// fakeDeployer records deploy calls and serves canned statuses.
type fakeDeployer struct {
	deployCalls []Request
	statusCalls int
	status      StatusResult
	statusErr   error
	result      Result
}

func (f *fakeDeployer) DeployFunction(_ context.Context, req Request) (Result, error) {
	f.deployCalls = append(f.deployCalls, req)
	return f.result, nil
}

func (f *fakeDeployer) GetFunctionStatus(_ context.Context, _, _ string) (StatusResult, error) {
	f.statusCalls++
	return f.status, f.statusErr
}

func (f *fakeDeployer) DeleteFunction(_ context.Context, _, _ string) error { return nil }

func (f *fakeDeployer) InvokeFunction(_ context.Context, _ string, _ any) (InvokeResult, error) {
	return InvokeResult{}, nil
}

func testStaticConfig() *scheduling.StaticConfig {
	return &scheduling.StaticConfig{
		Regions: map[string]scheduling.Region{
			"europe-north1": {Name: "Finland"},
			"us-east1":      {Name: "South Carolina"},
		},
		AgentDefaults: scheduling.AgentDefaults{VCPUsDefault: 1, VCPUsIfGPU: 8, GPUCount: 1},
	}
}

func scheduleForRegion(region string) *scheduling.Schedule {
	return &scheduling.Schedule{
		Recommendations: []scheduling.Recommendation{
			{Datetime: "2025-12-10 03:00", Region: region, Priority: 1},
			{Datetime: "2025-12-10 14:00", Region: "us-east1", Priority: 2},
		},
	}
}

func metaWithCode(code string) scheduling.FunctionMetadata {
	return scheduling.ApplyDefaults(scheduling.FunctionMetadata{
		FunctionID: "fn", Code: code, MemoryMB: 256,
	})
}

func newOrchestrator(deployer Deployer, store storage.Store) *Orchestrator {
	o := NewOrchestrator(deployer, store, testStaticConfig(), testLogger())
	o.now = func() time.Time { return time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC) }
	return o
}

func TestDeployAllNewFunction(t *testing.T) {
	store := newMemStore()
	deployer := &fakeDeployer{result: Result{Success: true, FunctionURL: "https://fn.run", Status: StatusActive}}
	o := newOrchestrator(deployer, store)

	schedule := scheduleForRegion("europe-north1")
	outcomes := o.DeployAll(context.Background(),
		map[string]*scheduling.Schedule{"fn": schedule},
		map[string]scheduling.FunctionMetadata{"fn": metaWithCode("def main(): pass")})

	outcome := outcomes["fn"]
	assert.True(t, outcome.Deployed)
	assert.Equal(t, ReasonNewFunction, outcome.Reason)
	assert.Equal(t, "europe-north1", outcome.Region)

	require.Len(t, deployer.deployCalls, 1)
	assert.Equal(t, "europe-north1", deployer.deployCalls[0].Region)
	assert.Equal(t, 256, deployer.deployCalls[0].MemoryMB)
	assert.Equal(t, "1", deployer.deployCalls[0].CPU)

	// Schedule carries the deployment info and the URL in every slot.
	require.NotNil(t, schedule.Deployment)
	assert.Equal(t, "https://fn.run", schedule.Deployment.FunctionURL)
	for _, rec := range schedule.Recommendations {
		assert.Equal(t, "https://fn.run", rec.FunctionURL)
	}

	// Deployment state was persisted once.
	var state scheduling.DeploymentState
	require.NoError(t, store.Read(context.Background(), storage.KeyDeploymentState, &state))
	assert.Equal(t, "europe-north1", state["fn"].DeployedRegion)
	assert.Equal(t, scheduling.ComputeCodeHash("def main(): pass"), state["fn"].CodeHash)
}

func TestDeployAllSkipsActiveUnchanged(t *testing.T) {
	store := newMemStore()
	code := "def main(): pass"
	_, err := store.Write(context.Background(), storage.KeyDeploymentState, scheduling.DeploymentState{
		"fn": {
			CodeHash:       scheduling.ComputeCodeHash(code),
			DeployedRegion: "europe-north1",
			FunctionURL:    "https://fn.run",
			DeployedAt:     "2025-12-08T00:00:00Z",
		},
	})
	require.NoError(t, err)

	deployer := &fakeDeployer{status: StatusResult{Exists: true, Status: StatusActive, FunctionURL: "https://fn.run"}}
	o := newOrchestrator(deployer, store)

	schedule := scheduleForRegion("europe-north1")
	outcomes := o.DeployAll(context.Background(),
		map[string]*scheduling.Schedule{"fn": schedule},
		map[string]scheduling.FunctionMetadata{"fn": metaWithCode(code)})

	outcome := outcomes["fn"]
	assert.False(t, outcome.Deployed)
	assert.Equal(t, ReasonAlreadyDeployed, outcome.Reason)
	assert.Empty(t, deployer.deployCalls)
	assert.Equal(t, 1, deployer.statusCalls)

	// URL was backfilled into the schedule even though nothing deployed.
	for _, rec := range schedule.Recommendations {
		assert.Equal(t, "https://fn.run", rec.FunctionURL)
	}
}

func TestDeployAllRedeploysOnCodeChange(t *testing.T) {
	store := newMemStore()
	_, err := store.Write(context.Background(), storage.KeyDeploymentState, scheduling.DeploymentState{
		"fn": {CodeHash: scheduling.ComputeCodeHash("old code"), DeployedRegion: "europe-north1", FunctionURL: "https://fn.run"},
	})
	require.NoError(t, err)

	deployer := &fakeDeployer{result: Result{Success: true, FunctionURL: "https://fn-v2.run"}}
	o := newOrchestrator(deployer, store)

	outcomes := o.DeployAll(context.Background(),
		map[string]*scheduling.Schedule{"fn": scheduleForRegion("europe-north1")},
		map[string]scheduling.FunctionMetadata{"fn": metaWithCode("new code")})

	assert.True(t, outcomes["fn"].Deployed)
	assert.Equal(t, ReasonCodeChanged, outcomes["fn"].Reason)
	// No status check when the code hash already forces a redeploy.
	assert.Zero(t, deployer.statusCalls)
}

func TestDeployAllRedeploysOnRegionChange(t *testing.T) {
	store := newMemStore()
	code := "def main(): pass"
	_, err := store.Write(context.Background(), storage.KeyDeploymentState, scheduling.DeploymentState{
		"fn": {CodeHash: scheduling.ComputeCodeHash(code), DeployedRegion: "us-east1", FunctionURL: "https://fn.run"},
	})
	require.NoError(t, err)

	deployer := &fakeDeployer{result: Result{Success: true, FunctionURL: "https://fn.run"}}
	o := newOrchestrator(deployer, store)

	outcomes := o.DeployAll(context.Background(),
		map[string]*scheduling.Schedule{"fn": scheduleForRegion("europe-north1")},
		map[string]scheduling.FunctionMetadata{"fn": metaWithCode(code)})

	assert.True(t, outcomes["fn"].Deployed)
	assert.Equal(t, ReasonRegionChanged, outcomes["fn"].Reason)
}

func TestDeployAllRedeploysWhenNotActive(t *testing.T) {
	store := newMemStore()
	code := "def main(): pass"
	_, err := store.Write(context.Background(), storage.KeyDeploymentState, scheduling.DeploymentState{
		"fn": {CodeHash: scheduling.ComputeCodeHash(code), DeployedRegion: "europe-north1", FunctionURL: "https://fn.run"},
	})
	require.NoError(t, err)

	deployer := &fakeDeployer{
		status: StatusResult{Exists: true, Status: StatusFailed},
		result: Result{Success: true, FunctionURL: "https://fn.run"},
	}
	o := newOrchestrator(deployer, store)

	outcomes := o.DeployAll(context.Background(),
		map[string]*scheduling.Schedule{"fn": scheduleForRegion("europe-north1")},
		map[string]scheduling.FunctionMetadata{"fn": metaWithCode(code)})

	assert.True(t, outcomes["fn"].Deployed)
	assert.Equal(t, ReasonNotActive, outcomes["fn"].Reason)
}

func TestDeployAllSkipsWithoutCode(t *testing.T) {
	store := newMemStore()
	deployer := &fakeDeployer{}
	o := newOrchestrator(deployer, store)

	outcomes := o.DeployAll(context.Background(),
		map[string]*scheduling.Schedule{"fn": scheduleForRegion("europe-north1")},
		map[string]scheduling.FunctionMetadata{"fn": scheduling.ApplyDefaults(scheduling.FunctionMetadata{FunctionID: "fn"})})

	assert.False(t, outcomes["fn"].Deployed)
	assert.Equal(t, ReasonNoCode, outcomes["fn"].Reason)
	assert.Empty(t, deployer.deployCalls)
}

func TestDeployAllReportsFailure(t *testing.T) {
	store := newMemStore()
	deployer := &fakeDeployer{result: Result{Success: false, Error: "build failed"}}
	o := newOrchestrator(deployer, store)

	outcomes := o.DeployAll(context.Background(),
		map[string]*scheduling.Schedule{"fn": scheduleForRegion("europe-north1")},
		map[string]scheduling.FunctionMetadata{"fn": metaWithCode("def main(): pass")})

	assert.False(t, outcomes["fn"].Deployed)
	assert.Equal(t, ReasonDeploymentFailed, outcomes["fn"].Reason)
	assert.Equal(t, "build failed", outcomes["fn"].Error)

	// A failed deploy leaves no deployment record behind.
	var state scheduling.DeploymentState
	require.NoError(t, store.Read(context.Background(), storage.KeyDeploymentState, &state))
	assert.NotContains(t, state, "fn")
}
