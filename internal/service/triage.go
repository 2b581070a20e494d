package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
	"github.com/xiaot623/gogo/medassist/internal/observability"
	"github.com/xiaot623/gogo/medassist/internal/orchestrator"
	"github.com/xiaot623/gogo/medassist/internal/publisher"
	"github.com/xiaot623/gogo/medassist/internal/resolver"
)

const (
	// triageTemperature keeps triage answers close to protocol.
	triageTemperature = 0.3

	defaultTriagePageSize = 20
	maxTriagePageSize     = 100
)

// AnalyzeTriage runs one structured triage analysis and streams it to out:
// analysis_start, the answer frames, analysis_result with the stored record,
// then done. Errors returned before any frame was sent mean the request was
// rejected.
func (s *Service) AnalyzeTriage(ctx context.Context, userID string, req domain.TriageRequest, out Emitter) error {
	req.PatientInfo.Name = strings.TrimSpace(req.PatientInfo.Name)
	req.SymptomInfo.ChiefComplaint = strings.TrimSpace(req.SymptomInfo.ChiefComplaint)
	if req.PatientInfo.Name == "" {
		return fmt.Errorf("%w: patient name is required", domain.ErrInvalidInput)
	}
	if req.SymptomInfo.ChiefComplaint == "" {
		return fmt.Errorf("%w: chief complaint is required", domain.ErrInvalidInput)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.TurnTimeout)
	defer cancel()

	recordID := "triage_" + uuid.New().String()
	l := logger.With("record_id", recordID, "module", resolver.ModuleTriage)
	return s.runTriage(runCtx, l, recordID, userID, req, out)
}

func (s *Service) runTriage(ctx context.Context, l *log.Logger, recordID, userID string, req domain.TriageRequest, out Emitter) error {
	started := time.Now()
	module := resolver.ModuleTriage

	res := s.resolver.Resolve(ctx, module)
	if res.RefreshErr != nil {
		s.metrics.ConfigRefreshFailed()
		l.Warn("module config refresh failed", "err", res.RefreshErr, "from_default", res.FromDefault)
	}

	s.metrics.StreamStarted()
	defer s.metrics.StreamEnded()

	out.Send(domain.Frame{Type: domain.FrameAnalysisStart, Message: "analyzing patient condition"})
	if res.RefreshErr != nil && res.FromDefault {
		out.Send(domain.Frame{
			Type:    domain.FrameError,
			Code:    domain.ErrorCodeConfig,
			Message: "configuration store unavailable, answering with offline guidance",
		})
	}

	fail := func(code, message string) {
		out.Send(domain.Frame{Type: domain.FrameError, Code: code, Message: message})
		s.metrics.TurnFinished(module, observability.OutcomeFailed, time.Since(started))
	}

	temperature := triageTemperature
	turns := []domain.Message{{Role: domain.RoleUser, Content: triagePrompt(req), CreatedAt: time.Now().UTC()}}
	seq, err := s.orchestrator.StreamCompletion(ctx, turns, res.Config, domain.ModeTriage, orchestrator.Overrides{Temperature: &temperature})
	if err != nil {
		fail(domain.ErrorCodeUpstream, err.Error())
		return nil
	}

	var done *domain.DoneEvent
	for ev := range seq {
		switch e := ev.(type) {
		case domain.AnswerStartEvent:
			s.metrics.FirstToken(module, time.Since(started))
			out.Send(publisher.FrameFor(e))
		case domain.ErrorEvent:
			s.metrics.UpstreamError(module, e.Code)
			out.Send(publisher.FrameFor(e))
		case domain.DoneEvent:
			done = &e
		default:
			out.Send(publisher.FrameFor(ev))
		}
	}
	if done == nil {
		fail(domain.ErrorCodeUpstream, "completion ended without a result")
		return nil
	}

	record := &domain.TriageRecord{
		RecordID:  recordID,
		UserID:    userID,
		Request:   req,
		Analysis:  parseTriageAnalysis(done.Content, req.SymptomInfo.ChiefComplaint),
		Degraded:  done.Degraded,
		CreatedAt: time.Now().UTC(),
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.CreateTriageRecord(persistCtx, record); err != nil {
		l.Error("failed to save triage record", "err", err)
		fail(domain.ErrorCodePersistence, "failed to save the triage record")
		return nil
	}

	if f, err := publisher.DataFrame(domain.FrameAnalysisResult, domain.TriageResult{RecordID: recordID, Analysis: record.Analysis}); err == nil {
		out.Send(f)
	}
	out.Send(publisher.FrameFor(*done))

	outcome := observability.OutcomeDone
	if done.Degraded {
		outcome = observability.OutcomeDegraded
	}
	latency := time.Since(started)
	s.metrics.TurnFinished(module, outcome, latency)
	l.Info("triage analysis finished", "urgency", record.Analysis.UrgencyLevel, "degraded", done.Degraded, "latency_ms", latency.Milliseconds())
	return nil
}

// GetTriageRecord returns one of the caller's triage records.
func (s *Service) GetTriageRecord(ctx context.Context, userID, recordID string) (*domain.TriageRecord, error) {
	record, err := s.store.GetTriageRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get triage record: %w", err)
	}
	if record == nil || record.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

// ListTriageRecords returns a page of the caller's triage records, newest
// first.
func (s *Service) ListTriageRecords(ctx context.Context, userID string, limit, offset int) ([]domain.TriageRecord, error) {
	if limit <= 0 {
		limit = defaultTriagePageSize
	}
	limit = min(limit, maxTriagePageSize)
	offset = max(offset, 0)

	records, err := s.store.ListTriageRecords(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list triage records: %w", err)
	}
	if records == nil {
		records = []domain.TriageRecord{}
	}
	return records, nil
}

func triagePrompt(req domain.TriageRequest) string {
	p, v, sym := req.PatientInfo, req.VitalSigns, req.SymptomInfo

	var b strings.Builder
	b.WriteString("Perform a triage assessment for the following patient.\n\n")

	b.WriteString("Patient:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Age: %d\n", p.Age)
	fmt.Fprintf(&b, "- Gender: %s\n", p.Gender)
	fmt.Fprintf(&b, "- Weight: %s kg\n", optFloat(p.Weight))
	fmt.Fprintf(&b, "- Height: %s cm\n", optFloat(p.Height))
	fmt.Fprintf(&b, "- Allergies: %s\n", listOrNone(p.Allergies))
	fmt.Fprintf(&b, "- Current medications: %s\n", listOrNone(p.Medications))
	fmt.Fprintf(&b, "- Medical history: %s\n\n", listOrNone(p.MedicalHistory))

	b.WriteString("Vital signs:\n")
	fmt.Fprintf(&b, "- Heart rate: %s bpm\n", optInt(v.HeartRate))
	fmt.Fprintf(&b, "- Blood pressure: %s/%s mmHg\n", optInt(v.BloodPressureSystolic), optInt(v.BloodPressureDiastolic))
	fmt.Fprintf(&b, "- Respiratory rate: %s /min\n", optInt(v.RespiratoryRate))
	fmt.Fprintf(&b, "- Temperature: %s °C\n", optFloat(v.Temperature))
	fmt.Fprintf(&b, "- Oxygen saturation: %s%%\n", optInt(v.OxygenSaturation))
	fmt.Fprintf(&b, "- Blood glucose: %s mmol/L\n\n", optFloat(v.BloodGlucose))

	b.WriteString("Symptoms:\n")
	fmt.Fprintf(&b, "- Chief complaint: %s\n", sym.ChiefComplaint)
	fmt.Fprintf(&b, "- Symptoms: %s\n", listOrNone(sym.Symptoms))
	fmt.Fprintf(&b, "- Pain level: %s/10\n", optInt(sym.PainLevel))
	fmt.Fprintf(&b, "- Duration: %s\n\n", orUnknown(sym.SymptomDuration))

	b.WriteString(`Answer with:
1. The urgency level, one of critical, urgent, semi_urgent or non_urgent.
2. The recommended actions as a numbered list.
3. The department the patient should be sent to.
4. Anything else the receiving team should know.`)
	return b.String()
}

func optInt(v *int) string {
	if v == nil {
		return "unknown"
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

var (
	actionLine = regexp.MustCompile(`^(?:[1-9](?:[.)]\s|、)|[-•*]\s)\s*`)

	// Lower levels are matched only after the higher ones fail, and the
	// non-urgent spellings are removed before looking for urgent.
	criticalWords  = []string{"critical", "危急", "紧急", "立即"}
	urgentWords    = []string{"urgent", "急诊", "尽快"}
	nonUrgentWords = []string{"non_urgent", "非紧急", "可等待"}
	lowerLevels    = strings.NewReplacer("semi_urgent", "", "non_urgent", "", "非紧急", "")

	levelPriority = map[domain.UrgencyLevel]int{
		domain.UrgencyCritical:   5,
		domain.UrgencyUrgent:     4,
		domain.UrgencySemiUrgent: 3,
		domain.UrgencyNonUrgent:  2,
	}
	levelWait = map[domain.UrgencyLevel]string{
		domain.UrgencyCritical:   "immediate",
		domain.UrgencyUrgent:     "15-30 minutes",
		domain.UrgencySemiUrgent: "1-2 hours",
		domain.UrgencyNonUrgent:  "2-4 hours",
	}

	departments = []struct {
		name  string
		words []string
	}{
		{"Cardiology", []string{"chest pain", "heart", "palpitation", "胸痛", "心脏", "心悸"}},
		{"Respiratory medicine", []string{"breath", "cough", "wheez", "呼吸", "咳嗽", "气喘"}},
		{"Gastroenterology", []string{"abdominal", "stomach", "digest", "腹痛", "胃痛", "消化"}},
		{"Neurology", []string{"headache", "neuro", "conscious", "头痛", "神经", "意识"}},
		{"Surgery", []string{"trauma", "fracture", "wound", "injur", "外伤", "骨折", "创伤"}},
	}
)

const (
	maxTriageActions    = 5
	defaultTriageAction = "Arrange medical care according to the triage level."
	defaultDepartment   = "Emergency department"
)

// parseTriageAnalysis extracts the structured triage result from a free text
// answer.
func parseTriageAnalysis(content, chiefComplaint string) domain.TriageAnalysis {
	level := classifyUrgency(content)
	return domain.TriageAnalysis{
		UrgencyLevel:             level,
		PriorityScore:            levelPriority[level],
		RecommendedActions:       triageActions(content),
		EstimatedWaitTime:        levelWait[level],
		DepartmentRecommendation: department(chiefComplaint),
		AdditionalNotes:          content,
	}
}

func classifyUrgency(content string) domain.UrgencyLevel {
	text := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(content))
	switch {
	case containsAny(lowerLevels.Replace(text), criticalWords):
		return domain.UrgencyCritical
	case containsAny(lowerLevels.Replace(text), urgentWords):
		return domain.UrgencyUrgent
	case containsAny(text, nonUrgentWords):
		return domain.UrgencyNonUrgent
	}
	return domain.UrgencySemiUrgent
}

func triageActions(content string) []string {
	var actions []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		loc := actionLine.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if item := strings.TrimSpace(line[loc[1]:]); item != "" {
			actions = append(actions, item)
			if len(actions) == maxTriageActions {
				break
			}
		}
	}
	if len(actions) == 0 {
		return []string{defaultTriageAction}
	}
	return actions
}

func department(chiefComplaint string) string {
	complaint := strings.ToLower(chiefComplaint)
	for _, d := range departments {
		if containsAny(complaint, d.words) {
			return d.name
		}
	}
	return defaultDepartment
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
