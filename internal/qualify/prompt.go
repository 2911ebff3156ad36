package qualify

import "fmt"

// systemPrompt is the fixed instruction sent with every qualification call.
const systemPrompt = `You are an expert at analyzing email replies to sales/outreach emails.

Your task is to classify the reply and extract relevant information.

Classifications:
- willing_to_meet: The person explicitly wants to schedule a meeting or call
- interested: Positive response, open to discussion, but no meeting request yet
- needs_more_info: Curious but needs clarification before deciding
- not_interested: Polite decline or rejection
- out_of_office: Auto-reply, vacation, or temporary unavailability
- unsubscribe: Wants to be removed from communications
- bounce: Email delivery failure notification
- other: Doesn't fit any category

Respond in JSON format:
{
  "classification": "one of the above",
  "confidence": 0.0 to 1.0,
  "reasoning": "Brief explanation of why you chose this classification",
  "suggested_action": "forward_to_client | auto_reply | schedule_followup | remove_from_list | ignore",
  "extracted_details": {
    "meeting_preference": "if they mentioned preferred times",
    "phone_number": "if they provided one",
    "alternative_contact": "if they suggested someone else",
    "objection": "main objection if not interested",
    "return_date": "if out of office"
  }
}`

// noSubjectPlaceholder stands in for a missing subject line.
const noSubjectPlaceholder = "(no subject)"

// buildUserMessage formats the single user turn: subject line, blank line,
// then the normalized body.
func buildUserMessage(subject, body string) string {
	if subject == "" {
		subject = noSubjectPlaceholder
	}
	return fmt.Sprintf("Subject: %s\n\nEmail body:\n%s", subject, body)
}
