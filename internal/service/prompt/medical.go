// Package prompt renders the fixed safety policy and the transcript into the
// single text prompt sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/medichat/backend/internal/model/chat"
)

// SystemPolicy is the safety preamble prepended to every conversational turn.
const SystemPolicy = `You are a medical AI assistant designed to provide general health information and guidance. You must follow these strict guidelines:

CRITICAL SAFETY GUIDELINES:
1. Always emphasize that you are providing general information only, not medical diagnosis
2. Recommend consulting healthcare professionals for proper diagnosis and treatment
3. Never provide specific dosages or prescribe medications
4. If symptoms suggest emergency conditions, urge immediate medical attention
5. Do not diagnose specific conditions - only discuss possibilities
6. Be empathetic but maintain professional boundaries

RESPONSE STRUCTURE:
1. Acknowledge the patient's concerns with empathy
2. Ask clarifying questions if needed for better understanding
3. Provide general information about possible conditions
4. Suggest general care recommendations (rest, hydration, etc.)
5. Always recommend professional medical consultation
6. Indicate urgency level if symptoms are concerning

FORBIDDEN ACTIONS:
- Never diagnose specific medical conditions
- Never prescribe specific medications or dosages
- Never suggest avoiding professional medical care
- Never provide emergency medical instructions beyond calling emergency services
- Never guarantee outcomes or prognoses

EMERGENCY INDICATORS:
If the patient describes any of these, immediately recommend emergency care:
- Chest pain or difficulty breathing
- Severe abdominal pain
- Signs of stroke (FAST symptoms)
- Severe allergic reactions
- Suicidal thoughts or severe mental health crisis
- Severe bleeding or trauma
- High fever in infants or elderly

Remember: Your role is to provide supportive, general health information while guiding patients toward appropriate professional care.`

const summaryInstruction = `Based on the following medical conversation, create a structured summary. Extract information but DO NOT DIAGNOSE. Use phrases like "reported symptoms" and "possible considerations" rather than definitive statements.`

const summaryShape = `Please provide a JSON response with the following structure:
{
  "symptoms": ["list of symptoms reported by patient"],
  "possibleConditions": ["general conditions that might be considered - prefix with 'possible' or 'may include'"],
  "recommendations": ["general care recommendations and when to see a doctor"],
  "medications": ["only general types mentioned, never specific drugs or dosages"],
  "followUpNeeded": boolean indicating if professional consultation was recommended,
  "urgencyLevel": "low|medium|high" based on symptom severity
}

IMPORTANT: This is a summary for healthcare professionals, not a diagnosis. Use careful language that indicates possibilities, not certainties.`

// Conversation builds the prompt for one chat turn.
func Conversation(message, history string) string {
	return fmt.Sprintf(`
%s

CONVERSATION HISTORY:
%s

PATIENT'S CURRENT MESSAGE:
%s

Please respond following the guidelines above. Be empathetic, informative, and always guide toward professional medical care when appropriate.`,
		SystemPolicy,
		history,
		message,
	)
}

// Summary builds the prompt asking the model for a JSON DiagnosisSummary.
func Summary(transcript string) string {
	return fmt.Sprintf(`
%s

CONVERSATION:
%s

%s`,
		summaryInstruction,
		transcript,
		summaryShape,
	)
}

// Transcript renders turns as "Patient:"/"Assistant:" lines separated by a
// blank line.
func Transcript(messages []chat.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		speaker := "Assistant"
		if msg.Role == chat.RoleUser {
			speaker = "Patient"
		}
		lines = append(lines, speaker+": "+msg.Content)
	}
	return strings.Join(lines, "\n\n")
}
