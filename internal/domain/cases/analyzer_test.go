package cases

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/secondopinion/secondopinion/internal/platform/genai"
)

type fakeModel struct {
	out   string
	err   error
	calls int
	parts []genai.Part
}

func (f *fakeModel) Generate(_ context.Context, parts []genai.Part, _ string) (string, error) {
	f.calls++
	f.parts = parts
	return f.out, f.err
}

type panicModel struct{}

func (panicModel) Generate(context.Context, []genai.Part, string) (string, error) {
	panic("model client blew up")
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []CaseAlert
}

func (r *alertRecorder) CaseReady(_ context.Context, alert CaseAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
}

func (r *alertRecorder) all() []CaseAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CaseAlert(nil), r.alerts...)
}

type staticNames struct{ name string }

func (s staticNames) DisplayName(context.Context, uuid.UUID) string { return s.name }

func newTestAnalyzer(model genai.Client) (*Analyzer, *mockCaseRepo, *mockRecordStore, *alertRecorder) {
	caseRepo := newMockCaseRepo()
	recStore := newMockRecordStore()
	alerts := &alertRecorder{}
	a := NewAnalyzer(caseRepo, recStore, model, alerts, staticNames{name: "Asha Rao"}, AnalyzerConfig{
		Workers:    1,
		QueueSize:  8,
		JobTimeout: 5 * time.Second,
	}, zerolog.Nop())
	return a, caseRepo, recStore, alerts
}

func seedProcessingCase(caseRepo *mockCaseRepo, recStore *mockRecordStore) *Case {
	patientID := uuid.New()
	r1 := recStore.add(patientID)
	now := time.Now().UTC()
	c := &Case{
		ID:        uuid.New(),
		PatientID: patientID,
		RecordIDs: []uuid.UUID{r1},
		Status:    StatusAIProcessing,
		Priority:  PriorityNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	caseRepo.Create(context.Background(), c)
	return c
}

func TestAnalyzer_SuccessfulAnalysis(t *testing.T) {
	model := &fakeModel{out: `{"summary":"Elevated troponin suggests cardiac event.","riskLevel":"High","extractedMarkers":["Troponin I 2.3 ng/mL"]}`}
	a, caseRepo, recStore, alerts := newTestAnalyzer(model)
	c := seedProcessingCase(caseRepo, recStore)

	a.run(context.Background(), c.ID)

	got, err := caseRepo.GetByID(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("reload case: %v", err)
	}
	if got.Status != StatusPendingDoctor {
		t.Errorf("expected PENDING_DOCTOR, got %s", got.Status)
	}
	if got.Priority != PriorityHigh {
		t.Errorf("expected High priority for High risk, got %s", got.Priority)
	}
	if got.AIAnalysis == nil || got.AIAnalysis.RiskLevel != RiskHigh {
		t.Fatalf("expected High risk analysis, got %+v", got.AIAnalysis)
	}

	if model.calls != 1 {
		t.Errorf("expected one model call, got %d", model.calls)
	}
	if len(model.parts) != 1 || model.parts[0].MIMEType != "application/pdf" {
		t.Errorf("expected one pdf part, got %+v", model.parts)
	}

	got2 := alerts.all()
	if len(got2) != 1 {
		t.Fatalf("expected one alert, got %d", len(got2))
	}
	if got2[0].CaseID != c.ID || got2[0].PatientName != "Asha Rao" || got2[0].RiskLevel != RiskHigh {
		t.Errorf("unexpected alert: %+v", got2[0])
	}
}

func TestAnalyzer_GarbageOutputUsesFallback(t *testing.T) {
	model := &fakeModel{out: "I am sorry, I cannot analyze these documents."}
	a, caseRepo, recStore, alerts := newTestAnalyzer(model)
	c := seedProcessingCase(caseRepo, recStore)

	a.run(context.Background(), c.ID)

	got, _ := caseRepo.GetByID(context.Background(), c.ID)
	if got.Status != StatusPendingDoctor {
		t.Fatalf("expected PENDING_DOCTOR, got %s", got.Status)
	}
	if got.AIAnalysis.Summary != fallbackSummary {
		t.Errorf("expected fallback summary, got %q", got.AIAnalysis.Summary)
	}
	if got.AIAnalysis.RiskLevel != RiskMedium {
		t.Errorf("expected Medium risk, got %s", got.AIAnalysis.RiskLevel)
	}
	if got.Priority != PriorityNormal {
		t.Errorf("expected Normal priority, got %s", got.Priority)
	}
	if len(alerts.all()) != 1 {
		t.Error("doctors should still be notified on fallback")
	}
}

func TestAnalyzer_ModelErrorStillAdvancesCase(t *testing.T) {
	model := &fakeModel{err: fmt.Errorf("upstream 503")}
	a, caseRepo, recStore, alerts := newTestAnalyzer(model)
	c := seedProcessingCase(caseRepo, recStore)

	a.run(context.Background(), c.ID)

	got, _ := caseRepo.GetByID(context.Background(), c.ID)
	if got.Status != StatusPendingDoctor {
		t.Fatalf("case must never stay AI_PROCESSING, got %s", got.Status)
	}
	if got.AIAnalysis.Summary != "AI Analysis failed to process. Manual review required." {
		t.Errorf("expected failure summary, got %q", got.AIAnalysis.Summary)
	}
	if got.AIAnalysis.RiskLevel != RiskUnknown {
		t.Errorf("expected Unknown risk, got %s", got.AIAnalysis.RiskLevel)
	}
	if len(alerts.all()) != 1 {
		t.Error("doctors should be notified even when the model fails")
	}
}

func TestAnalyzer_PanicIsContained(t *testing.T) {
	a, caseRepo, recStore, _ := newTestAnalyzer(panicModel{})
	c := seedProcessingCase(caseRepo, recStore)

	a.run(context.Background(), c.ID)

	got, _ := caseRepo.GetByID(context.Background(), c.ID)
	if got.Status != StatusPendingDoctor {
		t.Fatalf("panic must not strand the case, got %s", got.Status)
	}
}

func TestAnalyzer_AlreadyProcessedSkipsNotification(t *testing.T) {
	model := &fakeModel{out: `{"summary":"ok","riskLevel":"Low","extractedMarkers":[]}`}
	a, caseRepo, recStore, alerts := newTestAnalyzer(model)
	c := seedProcessingCase(caseRepo, recStore)

	// Another worker already advanced the case.
	caseRepo.SetAnalysis(context.Background(), c.ID, FallbackAnalysis(time.Now()), PriorityNormal)

	a.run(context.Background(), c.ID)

	got, _ := caseRepo.GetByID(context.Background(), c.ID)
	if got.AIAnalysis.Summary != fallbackSummary {
		t.Errorf("first result must win, got %q", got.AIAnalysis.Summary)
	}
	if len(alerts.all()) != 0 {
		t.Error("no alert should be sent when the guard rejects the update")
	}
}

func TestAnalyzer_MissingCaseIsDropped(t *testing.T) {
	model := &fakeModel{out: "irrelevant"}
	a, _, _, alerts := newTestAnalyzer(model)

	a.run(context.Background(), uuid.New())

	if model.calls != 0 {
		t.Error("model should not be called for a missing case")
	}
	if len(alerts.all()) != 0 {
		t.Error("no alert should be sent for a missing case")
	}
}

func TestAnalyzer_StartProcessesEnqueuedJobs(t *testing.T) {
	model := &fakeModel{out: `{"summary":"ok","riskLevel":"Low","extractedMarkers":[]}`}
	a, caseRepo, recStore, _ := newTestAnalyzer(model)
	c := seedProcessingCase(caseRepo, recStore)

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	a.Enqueue(c.ID)

	deadline := time.After(2 * time.Second)
	for {
		got, _ := caseRepo.GetByID(context.Background(), c.ID)
		if got.Status == StatusPendingDoctor {
			break
		}
		select {
		case <-deadline:
			t.Fatal("case was not processed in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	a.Wait()
}
