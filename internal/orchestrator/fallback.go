package orchestrator

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
	"github.com/xiaot623/gogo/medassist/internal/policy"
)

// DefaultFallbackDelay paces the degraded generator, one rune per tick.
const DefaultFallbackDelay = 30 * time.Millisecond

const fallbackThinking = "Analyzing the question against first-aid protocols and the relevant medical knowledge..."

// continuationSeparator is written before degraded text that continues a
// partially streamed upstream answer.
const continuationSeparator = "\n\n"

var cannedAnswers = map[string]string{
	policy.CategoryTriageChestPain: `### Triage assessment

#### 1. Urgency
- **Initial level**: **Urgent**
- Chest pain can come from several serious causes (cardiac, pulmonary embolism, aortic dissection) that must be ruled out first.

#### 2. Recommended actions
1. **Collect key details**: character and duration of the pain, associated symptoms.
2. **Initial checks**: measure oxygen saturation and record an ECG.
3. **Immediate care**: if a cardiac cause is suspected keep the patient at rest, give oxygen and arrange transport now.

**Summary**: triage level **Urgent** (assessment within 1 hour).`,

	policy.CategoryTriage: `### Triage assessment

#### 1. Urgency
- **Initial level**: **Semi-urgent**
- Based on the description, further assessment is needed to decide on treatment.

#### 2. Recommended actions
1. **Detailed assessment**: describe the symptoms and how long they have lasted.
2. **Observation**: watch closely for any change.
3. **Medical care**: arrange for a doctor to examine the patient and order the necessary tests.

**Summary**: triage level **Semi-urgent** (handle within 2 hours).`,

	policy.CategoryEmergency: `Emergency guidance:

1. **Make the scene safe**: check the surroundings first to avoid further injury.
2. **Assess the patient**: quickly check responsiveness, breathing and pulse.
3. **Basic life support**:
   - Not breathing: start CPR immediately.
   - Bleeding: apply direct pressure.
   - Keep the airway open.
4. **Call for help**: dial the emergency number now.
5. **Keep monitoring**: watch the patient closely until help arrives.

Stay calm and follow the standard protocol until professionals take over.`,

	policy.CategoryGeneral: `Thank you for your question. My suggestions:

1. **More detail**: share how long the symptoms have lasted and how severe they are.
2. **Professional advice**: consult a medical professional for an accurate diagnosis.
3. **Precautions**: watch for changes and note them down.
4. **Emergencies**: if severe symptoms appear, seek medical care immediately.

Send more details for more specific guidance.`,
}

// Fallback synthesizes answers locally when the upstream model cannot be used.
type Fallback struct {
	engine *policy.Engine
	delay  time.Duration
}

// NewFallback creates a degraded generator. A nil engine answers every
// message with the general response. delay paces the output; zero disables
// pacing.
func NewFallback(engine *policy.Engine, delay time.Duration) *Fallback {
	return &Fallback{engine: engine, delay: delay}
}

// Answer returns the canned answer for message.
func (f *Fallback) Answer(ctx context.Context, message string, mode domain.Mode) (string, string) {
	category := policy.CategoryGeneral
	if f.engine != nil {
		c, err := f.engine.Classify(context.WithoutCancel(ctx), policy.Input{Message: message, Mode: string(mode)})
		if err != nil {
			logger.Warn("fallback policy evaluation failed", "err", err)
		} else {
			category = c
		}
	}
	text, ok := cannedAnswers[category]
	if !ok {
		category = policy.CategoryGeneral
		text = cannedAnswers[policy.CategoryGeneral]
	}
	return category, text
}

// stream continues st with degraded content and finishes the turn.
func (f *Fallback) stream(ctx context.Context, st *turnState, message string, mode domain.Mode) {
	_, text := f.Answer(ctx, message, mode)

	var limiter *rate.Limiter
	if f.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(f.delay), 1)
	}
	// Pacing stops once ctx ends; the rest is sent in one piece.
	paced := limiter != nil

	emitRunes := func(s string, emit func(string) bool) bool {
		if !paced {
			return emit(s)
		}
		runes := []rune(s)
		for i, r := range runes {
			if err := limiter.Wait(ctx); err != nil {
				paced = false
				return emit(string(runes[i:]))
			}
			if !emit(string(r)) {
				return false
			}
		}
		return true
	}

	if st.reasoningEnabled && !st.answerStarted && st.reasoning.Len() == 0 {
		if !emitRunes(fallbackThinking, st.thinking) {
			return
		}
	}

	if st.answer.Len() > 0 {
		text = continuationSeparator + text
	}
	if !emitRunes(text, st.answerDelta) {
		return
	}
	st.finish(true)
}
