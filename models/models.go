package models

// Database schema overview:
// 1. users, refresh_tokens, permanent_tokens - respondents, managed by cookie-based authentication
// 2. bills - the legislation an interview is about, read-only for the interview engine
// 3. interview_configs - one per bill: mode, themes, knowledge source and time budget
// 4. interview_questions - the ordered predefined questions of a configuration
// 5. interview_sessions - one attempt by a respondent; at most one active per (config, user)
// 6. interview_messages - append-only transcript; assistant rows hold a JSON envelope
// 7. interview_reports - the confirmed opinion report, one per session
// 8. report_scores - a key-value table of curation scores for a report
